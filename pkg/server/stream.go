package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicemood/pkg/audio/pcm"
	"github.com/haivivi/voicemood/pkg/audio/resampler"
)

// handleStream accepts binary PCM frames over a websocket and writes them to
// the pipe. Samples arriving while no recording is active are dropped. Only
// one stream connection is served at a time.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		writeError(w, http.StatusNotFound, "stream source disabled")
		return
	}

	q := r.URL.Query()
	enc, err := pcm.ParseEncoding(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := pcm.Format{Encoding: enc, SampleRate: s.pipe.SampleRate()}
	if v := q.Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			writeError(w, http.StatusBadRequest, "invalid rate")
			return
		}
		format.SampleRate = rate
	}

	var rs *resampler.Resampler
	if format.SampleRate != s.pipe.SampleRate() {
		rs, err = resampler.New(format.SampleRate, s.pipe.SampleRate())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if !s.streaming.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "stream already connected")
		return
	}
	defer s.streaming.Store(false)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade", "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("remote", r.RemoteAddr, "format", format.String())
	log.Info("stream connected")

	dec := pcm.NewDecoder(format.Encoding)
	var received, dropped int64
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				log.Warn("stream read", "error", err)
			}
			break
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		received += int64(len(data))

		samples := dec.Decode(data)
		if rs != nil {
			if samples, err = rs.Process(samples); err != nil {
				log.Error("stream resample", "error", err)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "resample failed"), time.Time{})
				break
			}
		}
		dropped += s.forward(samples)
	}
	if rs != nil {
		if tail, err := rs.Flush(); err != nil {
			log.Warn("stream resample flush", "error", err)
		} else {
			dropped += s.forward(tail)
		}
	}
	log.Info("stream disconnected",
		"received", format.Duration(received).String(),
		"dropped_samples", dropped)
}

// forward writes samples to the pipe and returns how many were dropped
// because no recording was open.
func (s *Server) forward(samples []float32) int64 {
	if len(samples) == 0 {
		return 0
	}
	if !s.pipe.Active() {
		return int64(len(samples))
	}
	if n, _ := s.pipe.Write(samples); n == 0 {
		return int64(len(samples))
	}
	return 0
}
