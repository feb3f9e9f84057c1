// Package resampler converts mono float32 audio between sample rates.
//
// It wraps github.com/tphakala/go-audio-resampling, a pure Go port of the
// SoX resampler, at high quality.
//
// Use Resample for a complete clip and a Resampler for chunked streams:
//
//	r, err := resampler.New(44100, 48000)
//	if err != nil {
//	    return err
//	}
//	for chunk := range chunks {
//	    out, err := r.Process(chunk)
//	    ...
//	}
package resampler
