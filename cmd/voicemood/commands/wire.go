package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/voicemood/pkg/capture"
	"github.com/haivivi/voicemood/pkg/config"
	"github.com/haivivi/voicemood/pkg/features"
	"github.com/haivivi/voicemood/pkg/history"
	"github.com/haivivi/voicemood/pkg/kv"
	"github.com/haivivi/voicemood/pkg/model"
	"github.com/haivivi/voicemood/pkg/predict"
	"github.com/haivivi/voicemood/pkg/storage"
)

// modelStore opens the model artifact location: S3 when a bucket is set,
// the local models directory otherwise.
func modelStore(ctx context.Context, cfg *config.Config) (storage.FileStore, string, error) {
	if s3 := cfg.Models.S3; s3.Bucket != "" {
		store, err := storage.DialS3(ctx, storage.S3Config{
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "s3://" + s3.Bucket + "/" + s3.Prefix, nil
	}
	store, err := storage.NewLocal(cfg.Models.Dir)
	if err != nil {
		return nil, "", fmt.Errorf("open models dir: %w", err)
	}
	return store, store.Root(), nil
}

// loadArtifacts loads and validates the model artifacts against the
// configured extractor.
func loadArtifacts(ctx context.Context, cfg *config.Config) (*model.Artifacts, string, error) {
	store, source, err := modelStore(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	a, err := model.Load(ctx, store, features.Dim(cfg.FeatureConfig()))
	if err != nil {
		return nil, source, err
	}
	return a, source, nil
}

// newPredictor builds a predictor. With allowMissing, artifacts that fail to
// load are logged and the predictor reports models not loaded.
func newPredictor(ctx context.Context, cfg *config.Config, log *slog.Logger, allowMissing bool) (*predict.Predictor, error) {
	ext, err := features.New(cfg.FeatureConfig())
	if err != nil {
		return nil, err
	}
	a, source, err := loadArtifacts(ctx, cfg)
	if err != nil {
		if !allowMissing {
			return nil, err
		}
		log.Warn("models not loaded", "source", source, "error", err)
		a = nil
	} else {
		log.Info("models loaded", "source", source, "kind", a.Kind(), "classes", len(a.Labels.Classes))
	}
	return predict.New(a,
		predict.WithExtractor(ext),
		predict.WithLogger(log.With("component", "predict")),
	), nil
}

// openHistory opens the recording history. The returned close function is
// never nil.
func openHistory(cfg *config.Config, log *slog.Logger) (*history.History, func(), error) {
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.History.Dir, Logger: log.With("component", "badger")})
	if err != nil {
		return nil, func() {}, fmt.Errorf("open history: %w", err)
	}
	var files storage.FileStore
	if cfg.History.SaveAudio {
		local, err := storage.NewLocal(cfg.History.RecordingsDir)
		if err != nil {
			db.Close()
			return nil, func() {}, fmt.Errorf("open recordings dir: %w", err)
		}
		files = local
	}
	h := history.New(db, files, history.WithLogger(log.With("component", "history")))
	log.Info("history opened", "dir", cfg.History.Dir, "save_audio", h.SavesAudio())
	return h, func() {
		if err := db.Close(); err != nil {
			log.Warn("close history", "error", err)
		}
	}, nil
}

// newDevice returns the capture device for the configured source and, for
// the stream source, the pipe the server feeds.
func newDevice(cfg *config.Config) (capture.Device, *capture.Pipe, error) {
	switch cfg.Audio.Source {
	case config.SourceStream:
		pipe := capture.NewPipe(cfg.Audio.SampleRate)
		return pipe, pipe, nil
	case config.SourcePortAudio:
		dev := capture.NewPortAudio(cfg.DeviceRate(), cfg.Audio.Buffer)
		return capture.Resample(dev, cfg.Audio.SampleRate), nil, nil
	}
	return nil, nil, errors.New("unknown audio source " + cfg.Audio.Source)
}
