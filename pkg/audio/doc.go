// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - pcm: raw s16le/f32le sample streams
//   - wav: WAV file decoding and encoding
//   - resampler: sample-rate conversion
//   - portaudio: local input devices (cgo, build tag portaudio)
//
// Example usage:
//
//	import (
//	    "github.com/haivivi/voicemood/pkg/audio/resampler"
//	    "github.com/haivivi/voicemood/pkg/audio/wav"
//	)
//
//	clip, err := wav.Decode(f)
//	samples, err := resampler.Resample(clip.Samples, clip.SampleRate, 48000)
package audio
