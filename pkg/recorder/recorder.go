// Package recorder implements the recording session: a start/stop state
// machine that captures audio from a device into a buffer on a background
// goroutine and, on stop, runs a one-shot prediction over everything
// captured.
//
// There is at most one recording at a time per Session. Stop joins the
// capture goroutine before it reads the buffer, so the buffer has exactly
// one writer and one reader and they never overlap.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/voicemood/pkg/buffer"
	"github.com/haivivi/voicemood/pkg/capture"
	"github.com/haivivi/voicemood/pkg/history"
	"github.com/haivivi/voicemood/pkg/predict"
)

// Status is the outcome of a Start or Stop call.
type Status string

const (
	StatusRecordingStarted Status = "recording_started"
	StatusAlreadyRecording Status = "already_recording"
	StatusNotRecording     Status = "not_recording"
	StatusNoAudio          Status = "no_audio"
	StatusPredictionFailed Status = "prediction_failed"
	StatusSuccess          Status = "success"
)

// ErrNoAudio is reported when a recording captured no samples.
var ErrNoAudio = errors.New("no audio data recorded")

// NoAudioMessage is the Result.Error text of a recording without samples.
const NoAudioMessage = "No audio data recorded"

// CaptureError reports a capture stream that could not be opened.
type CaptureError struct {
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Predictor classifies a finished recording.
type Predictor interface {
	Predict(samples []float32, sampleRate int) (*predict.Result, error)
}

// Result is the outcome of Stop.
type Result struct {
	Status        Status             `json:"status" yaml:"status"`
	Emotion       string             `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
	AudioDuration float64            `json:"audio_duration,omitempty" yaml:"audio_duration,omitempty"`
	AudioFile     string             `json:"audio_file,omitempty" yaml:"audio_file,omitempty"`
	ID            string             `json:"id,omitempty" yaml:"id,omitempty"`
	Error         string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// Session is a recording session. It is safe for concurrent use.
type Session struct {
	device    capture.Device
	predictor Predictor
	history   *history.History
	logger    *slog.Logger
	frameSize int

	mu        sync.Mutex
	recording bool
	started   time.Time
	buf       *buffer.Buffer[float32]
	cancel    context.CancelFunc
	run       *captureRun
}

// captureRun is one capture goroutine. err is written before done is
// closed.
type captureRun struct {
	done chan struct{}
	err  error
}

// Option configures a Session.
type Option func(*Session)

// WithHistory persists every finished recording.
func WithHistory(h *history.History) Option {
	return func(s *Session) { s.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFrameSize sets the number of samples requested per capture read.
func WithFrameSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// New creates an idle Session recording from device.
func New(device capture.Device, p Predictor, opts ...Option) *Session {
	s := &Session{
		device:    device,
		predictor: p,
		logger:    slog.Default(),
		frameSize: 1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SampleRate returns the rate of the recorded samples.
func (s *Session) SampleRate() int { return s.device.SampleRate() }

// IsRecording reports whether a recording is in progress.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Start begins a recording. It returns StatusAlreadyRecording without side
// effects if one is in progress. A device that fails to open is reported as
// a *CaptureError and the session stays idle.
func (s *Session) Start(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		return StatusAlreadyRecording, nil
	}

	stream, err := s.device.Open(ctx)
	if err != nil {
		s.logger.Error("open capture stream", "device", s.device.Name(), "error", err)
		return "", &CaptureError{Device: s.device.Name(), Err: err}
	}

	// The capture loop outlives the request that started it.
	cctx, cancel := context.WithCancel(context.Background())
	stopClose := context.AfterFunc(cctx, func() { stream.Close() })

	s.buf = buffer.N[float32](s.device.SampleRate() * 10)
	s.cancel = cancel
	s.run = &captureRun{done: make(chan struct{})}
	s.started = time.Now()
	s.recording = true
	go s.capture(stream, s.buf, s.run, stopClose)

	s.logger.Info("recording started", "device", s.device.Name(), "sample_rate", s.device.SampleRate())
	return StatusRecordingStarted, nil
}

func (s *Session) capture(stream capture.Stream, buf *buffer.Buffer[float32], run *captureRun, stopClose func() bool) {
	defer close(run.done)
	defer stream.Close()
	defer stopClose()
	defer buf.CloseWrite()

	frame := make([]float32, s.frameSize)
	for {
		n, err := stream.Read(frame)
		if n > 0 {
			buf.Write(frame[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Error("capture stream failed", "device", s.device.Name(), "error", err)
				run.err = err
			}
			return
		}
	}
}

// Stop ends the recording, waits for the capture goroutine to exit and
// predicts the emotion of the captured audio. ctx bounds persistence only.
func (s *Session) Stop(ctx context.Context) *Result {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return &Result{Status: StatusNotRecording}
	}
	buf, run := s.buf, s.run
	s.cancel()
	<-run.done
	s.recording = false
	s.cancel, s.run, s.buf = nil, nil, nil
	captureErr := run.err
	elapsed := time.Since(s.started)
	s.mu.Unlock()

	samples := buf.Snapshot()
	rate := s.device.SampleRate()
	log := s.logger.With("samples", len(samples), "elapsed", elapsed)
	if captureErr != nil {
		log = log.With("capture_error", captureErr)
	}

	res := &Result{}
	var stopErr error
	switch {
	case len(samples) == 0:
		res.Status = StatusNoAudio
		res.Error = NoAudioMessage
		stopErr = ErrNoAudio
	default:
		out, err := s.predictor.Predict(samples, rate)
		if err != nil {
			res.Status = StatusPredictionFailed
			res.Error = err.Error()
			stopErr = err
			break
		}
		res.Status = StatusSuccess
		res.Emotion = out.Emotion
		res.Probabilities = out.Probabilities
		res.AudioDuration = out.Duration
	}
	log.Info("recording stopped", "status", res.Status, "emotion", res.Emotion, "error", stopErr)

	if s.history != nil {
		s.persist(ctx, res, samples, rate)
	}
	return res
}

func (s *Session) persist(ctx context.Context, res *Result, samples []float32, rate int) {
	rec := &history.Recording{
		Status:        string(res.Status),
		Emotion:       res.Emotion,
		Probabilities: res.Probabilities,
		AudioDuration: float64(len(samples)) / float64(rate),
		Error:         res.Error,
	}
	if err := s.history.Add(ctx, rec, samples, rate); err != nil {
		s.logger.Error("save recording", "error", err)
		return
	}
	res.ID = rec.ID
	res.AudioFile = rec.AudioFile
}
