// Package capture provides audio input devices for recording sessions.
//
// A Device opens Streams of mono float32 samples at its SampleRate. Streams
// block in Read until samples arrive and return io.EOF once closed and
// drained, so a recorder can stop a blocked Read by closing the stream from
// another goroutine.
//
// Devices:
//
//   - Pipe: fed by network clients (the websocket intake) or tests.
//   - PortAudio: the local default microphone, available when built with the
//     "portaudio" tag.
//   - Resample: wraps another device and converts its rate.
package capture

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Open when the device cannot record.
var ErrUnavailable = errors.New("capture: device unavailable")

// Device is a source of capture streams.
type Device interface {
	// Open starts a new capture stream.
	Open(ctx context.Context) (Stream, error)
	// SampleRate is the rate of the samples delivered by the streams.
	SampleRate() int
	// Name identifies the device in logs.
	Name() string
}

// Stream is an open capture stream.
type Stream interface {
	// Read blocks until at least one sample is available and copies
	// samples into buf. It returns io.EOF after Close once drained.
	Read(buf []float32) (int, error)
	// Close stops the stream. It may be called concurrently with Read
	// and more than once.
	Close() error
}

// DeviceInfo describes a local input device.
type DeviceInfo struct {
	Index             int     `json:"index" yaml:"index"`
	Name              string  `json:"name" yaml:"name"`
	Channels          int     `json:"channels" yaml:"channels"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	Default           bool    `json:"default" yaml:"default"`
}
