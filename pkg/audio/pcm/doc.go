// Package pcm converts raw little-endian PCM byte streams to and from mono
// float32 samples.
//
// Two encodings are supported, matching what browsers and command-line tools
// send over the wire:
//
//   - S16LE: signed 16-bit integers, scaled by 1/32768
//   - F32LE: IEEE-754 float32
//
// Example usage:
//
//	format := pcm.Format{Encoding: pcm.S16LE, SampleRate: 16000}
//	dec := pcm.NewDecoder(format.Encoding)
//	for frame := range frames {
//	    samples := dec.Decode(frame)
//	    ...
//	}
package pcm
