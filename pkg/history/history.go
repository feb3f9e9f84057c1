// Package history keeps a log of finished recordings.
//
// Each recording is a msgpack record in a kv.Store under
//
//	recordings:<created_at unix nanos, 20 digits>:<id>
//
// so that listing the prefix in reverse yields the newest first, with an
// id index entry at recording_ids:<id>. The captured audio is stored as a
// WAV file at recordings/<id>.wav in a storage.FileStore.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voicemood/pkg/audio/wav"
	"github.com/haivivi/voicemood/pkg/kv"
	"github.com/haivivi/voicemood/pkg/storage"
)

// ErrNotFound is returned for unknown recording ids or missing audio.
var ErrNotFound = errors.New("history: recording not found")

const (
	recordingsPrefix = "recordings"
	idsPrefix        = "recording_ids"
)

// Recording is one finished recording and its outcome.
type Recording struct {
	ID            string             `msgpack:"id" json:"id" yaml:"id"`
	CreatedAt     time.Time          `msgpack:"created_at" json:"created_at" yaml:"created_at"`
	Status        string             `msgpack:"status" json:"status" yaml:"status"`
	Emotion       string             `msgpack:"emotion,omitempty" json:"emotion,omitempty" yaml:"emotion,omitempty"`
	Probabilities map[string]float64 `msgpack:"probabilities,omitempty" json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
	AudioDuration float64            `msgpack:"audio_duration" json:"audio_duration" yaml:"audio_duration"`
	AudioFile     string             `msgpack:"audio_file,omitempty" json:"audio_file,omitempty" yaml:"audio_file,omitempty"`
	Error         string             `msgpack:"error,omitempty" json:"error,omitempty" yaml:"error,omitempty"`
}

// AudioPath returns the FileStore path of a recording's WAV file.
func AudioPath(id string) string {
	return "recordings/" + id + ".wav"
}

// History stores recordings. It is safe for concurrent use.
type History struct {
	store  kv.Store
	files  storage.FileStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a History.
type Option func(*History)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *History) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates a History. files may be nil, in which case audio is not
// saved.
func New(store kv.Store, files storage.FileStore, opts ...Option) *History {
	h := &History{
		store:  store,
		files:  files,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SavesAudio reports whether audio is persisted.
func (h *History) SavesAudio() bool { return h.files != nil }

func recordKey(r *Recording) kv.Key {
	return kv.Key{recordingsPrefix, fmt.Sprintf("%020d", r.CreatedAt.UnixNano()), r.ID}
}

// Add stores rec, assigning ID and CreatedAt when unset. When samples are
// given and audio is saved, they are written as WAV and rec.AudioFile is
// set. rec is updated in place.
func (h *History) Add(ctx context.Context, rec *Recording, samples []float32, sampleRate int) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = h.now().UTC()
	}

	if h.files != nil && len(samples) > 0 {
		data, err := wav.EncodeBytes(samples, sampleRate)
		if err != nil {
			return fmt.Errorf("history: encode audio: %w", err)
		}
		path := AudioPath(rec.ID)
		if err := storage.WriteFile(ctx, h.files, path, data); err != nil {
			return fmt.Errorf("history: save audio: %w", err)
		}
		rec.AudioFile = path
	}

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	key := recordKey(rec)
	if err := h.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("history: store: %w", err)
	}
	if err := h.store.Set(ctx, kv.Key{idsPrefix, rec.ID}, []byte(key.String())); err != nil {
		return fmt.Errorf("history: index: %w", err)
	}
	h.logger.Debug("recording saved", "id", rec.ID, "status", rec.Status, "audio", rec.AudioFile)
	return nil
}

// List returns up to limit recordings, newest first. A limit of zero or
// less returns all.
func (h *History) List(ctx context.Context, limit int) ([]*Recording, error) {
	var out []*Recording
	opts := kv.ListOptions{Reverse: true, Limit: max(limit, 0)}
	for e, err := range h.store.List(ctx, kv.Key{recordingsPrefix}, opts) {
		if err != nil {
			return nil, fmt.Errorf("history: list: %w", err)
		}
		var r Recording
		if err := msgpack.Unmarshal(e.Value, &r); err != nil {
			h.logger.Warn("skipping undecodable recording", "key", e.Key.String(), "error", err)
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// Get returns the recording with the given id.
func (h *History) Get(ctx context.Context, id string) (*Recording, error) {
	ref, err := h.store.Get(ctx, kv.Key{idsPrefix, id})
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, kv.ErrInvalidKey) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	data, err := h.store.Get(ctx, kv.Key(strings.Split(string(ref), kv.Separator)))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	var r Recording
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", id, err)
	}
	return &r, nil
}

// Audio opens the saved WAV of the recording with the given id.
func (h *History) Audio(ctx context.Context, id string) (io.ReadCloser, error) {
	r, err := h.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.files == nil || r.AudioFile == "" {
		return nil, ErrNotFound
	}
	rc, err := h.files.Read(ctx, r.AudioFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: audio %s: %w", id, err)
	}
	return rc, nil
}
