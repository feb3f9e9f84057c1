package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicemood/pkg/capture"
	"github.com/haivivi/voicemood/pkg/recorder"
	"github.com/haivivi/voicemood/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP recording server",
	Long: `Run the HTTP API on server.addr.

Models that fail to load are reported and the server keeps running with
models_loaded=false, so every stop_recording returns prediction_failed
until the artifacts are fixed and the server restarted.

With --source stream, audio arrives as binary websocket frames on
/api/stream instead of from a local input device.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":5000", "listen address")
	serveCmd.Flags().String("source", "portaudio", "audio source (portaudio, stream)")
	serveCmd.Flags().String("models-dir", "models", "model artifact directory")
	serveCmd.Flags().Bool("history", true, "persist recordings")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	p, err := newPredictor(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	dev, pipe, err := newDevice(cfg)
	if err != nil {
		return err
	}
	if pipe == nil {
		defer func() {
			if err := capture.Shutdown(); err != nil {
				logger.Warn("release audio device", "error", err)
			}
		}()
	}

	ropts := []recorder.Option{recorder.WithLogger(logger.With("component", "recorder"))}
	sopts := []server.Option{server.WithLogger(logger.With("component", "server"))}
	if pipe != nil {
		sopts = append(sopts, server.WithPipe(pipe))
	}
	if cfg.History.Enabled {
		h, closeHistory, err := openHistory(cfg, logger)
		if err != nil {
			return err
		}
		defer closeHistory()
		ropts = append(ropts, recorder.WithHistory(h))
		sopts = append(sopts, server.WithHistory(h))
	}

	session := recorder.New(dev, p, ropts...)
	srv := server.New(session, p, sopts...)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	logger.Info("voicemood ready",
		"source", cfg.Audio.Source,
		"device", dev.Name(),
		"sample_rate", cfg.Audio.SampleRate,
		"models_loaded", p.Loaded(),
		"history", cfg.History.Enabled)

	return srv.Serve(ctx, ln, server.ServeOptions{
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	})
}
