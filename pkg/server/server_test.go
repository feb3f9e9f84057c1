package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicemood/pkg/audio/pcm"
	"github.com/haivivi/voicemood/pkg/audio/wav"
	"github.com/haivivi/voicemood/pkg/capture"
	"github.com/haivivi/voicemood/pkg/features"
	"github.com/haivivi/voicemood/pkg/history"
	"github.com/haivivi/voicemood/pkg/kv"
	"github.com/haivivi/voicemood/pkg/model/modeltest"
	"github.com/haivivi/voicemood/pkg/predict"
	"github.com/haivivi/voicemood/pkg/recorder"
	"github.com/haivivi/voicemood/pkg/storage"
)

const rate = 48000

type fixture struct {
	ts      *httptest.Server
	pipe    *capture.Pipe
	session *recorder.Session
	history *history.History
}

func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()
	f := &fixture{pipe: capture.NewPipe(rate)}
	p := predict.New(modeltest.Artifacts(features.Dim(features.DefaultConfig())))

	var ropts []recorder.Option
	sopts := []Option{WithPipe(f.pipe)}
	if withHistory {
		f.history = history.New(kv.NewMemory(), storage.NewMemory())
		ropts = append(ropts, recorder.WithHistory(f.history))
		sopts = append(sopts, WithHistory(f.history))
	}
	f.session = recorder.New(f.pipe, p, ropts...)
	f.ts = httptest.NewServer(New(f.session, p, sopts...).Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func feed(t *testing.T, pipe *capture.Pipe, samples []float32) {
	t.Helper()
	const chunk = rate / 50
	for off := 0; off < len(samples); off += chunk {
		end := min(off+chunk, len(samples))
		if n, _ := pipe.Write(samples[off:end]); n != end-off {
			t.Fatalf("pipe.Write = %d, want %d", n, end-off)
		}
	}
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, false)

	var health map[string]any
	resp := f.do(t, http.MethodGet, "/api/health", &health)
	if resp.StatusCode != http.StatusOK || health["status"] != "healthy" || health["models_loaded"] != true {
		t.Fatalf("health = %d %v", resp.StatusCode, health)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}

	var status statusResponse
	f.do(t, http.MethodGet, "/api/status", &status)
	if status.IsRecording || !status.ModelsLoaded {
		t.Fatalf("status = %+v", status)
	}
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodOptions, "/api/start_recording", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("OPTIONS = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Fatalf("Allow-Methods = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, false)
	if resp := f.do(t, http.MethodGet, "/api/start_recording", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET start_recording = %d", resp.StatusCode)
	}
}

func TestRecordingFlow(t *testing.T) {
	f := newFixture(t, false)

	var start startResponse
	f.do(t, http.MethodPost, "/api/start_recording", &start)
	if start.Status != string(recorder.StatusRecordingStarted) {
		t.Fatalf("start = %+v", start)
	}
	f.do(t, http.MethodPost, "/api/start_recording", &start)
	if start.Status != string(recorder.StatusAlreadyRecording) {
		t.Fatalf("second start = %+v", start)
	}

	var status statusResponse
	f.do(t, http.MethodGet, "/api/status", &status)
	if !status.IsRecording {
		t.Fatal("is_recording = false while recording")
	}

	feed(t, f.pipe, modeltest.Tone(rate, 1.5, 220, 0.19))

	var res recorder.Result
	resp := f.do(t, http.MethodPost, "/api/stop_recording", &res)
	if resp.StatusCode != http.StatusOK || res.Status != recorder.StatusSuccess {
		t.Fatalf("stop = %d %+v", resp.StatusCode, res)
	}
	if len(res.Probabilities) != 8 || res.Probabilities[res.Emotion] == 0 {
		t.Fatalf("probabilities = %v, emotion %q", res.Probabilities, res.Emotion)
	}
	if res.AudioDuration < 1.4 || res.AudioDuration > 1.6 {
		t.Fatalf("audio_duration = %v", res.AudioDuration)
	}

	f.do(t, http.MethodPost, "/api/stop_recording", &res)
	if res.Status != recorder.StatusNotRecording || res.Error != "" {
		t.Fatalf("stop while idle = %+v", res)
	}
}

func TestStopNoAudio(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/api/start_recording", nil)

	var res recorder.Result
	resp := f.do(t, http.MethodPost, "/api/stop_recording", &res)
	if resp.StatusCode != http.StatusOK || res.Status != recorder.StatusNoAudio || res.Error == "" {
		t.Fatalf("stop = %d %+v", resp.StatusCode, res)
	}
}

type deadDevice struct{}

func (deadDevice) Open(context.Context) (capture.Stream, error) {
	return nil, capture.ErrUnavailable
}

func (deadDevice) SampleRate() int { return rate }

func (deadDevice) Name() string { return "dead" }

func TestStartCaptureFailed(t *testing.T) {
	p := predict.New(nil)
	ts := httptest.NewServer(New(recorder.New(deadDevice{}, p), p).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/start_recording", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var start startResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || start.Status != StatusCaptureFailed || start.Error == "" {
		t.Fatalf("start = %d %+v", resp.StatusCode, start)
	}

	var health healthResponse
	hresp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer hresp.Body.Close()
	json.NewDecoder(hresp.Body).Decode(&health)
	if health.ModelsLoaded {
		t.Fatal("models_loaded = true without artifacts")
	}
}

func TestRecordings(t *testing.T) {
	f := newFixture(t, true)

	var ids []string
	for range 2 {
		f.do(t, http.MethodPost, "/api/start_recording", nil)
		feed(t, f.pipe, modeltest.Tone(rate, 1.2, 330, 0.19))
		var res recorder.Result
		f.do(t, http.MethodPost, "/api/stop_recording", &res)
		if res.Status != recorder.StatusSuccess || res.ID == "" {
			t.Fatalf("stop = %+v", res)
		}
		ids = append(ids, res.ID)
	}

	var list recordingsResponse
	f.do(t, http.MethodGet, "/api/recordings", &list)
	if len(list.Recordings) != 2 || list.Recordings[0].ID != ids[1] {
		t.Fatalf("recordings = %+v", list.Recordings)
	}
	f.do(t, http.MethodGet, "/api/recordings?limit=1", &list)
	if len(list.Recordings) != 1 {
		t.Fatalf("limit=1 returned %d", len(list.Recordings))
	}
	if resp := f.do(t, http.MethodGet, "/api/recordings?limit=abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid limit = %d", resp.StatusCode)
	}

	resp, err := http.Get(f.ts.URL + "/api/recordings/" + ids[0] + "/audio")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("audio = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	clip, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if clip.SampleRate != rate || clip.Duration() < 1 {
		t.Fatalf("clip = %d Hz, %v", clip.SampleRate, clip.Duration())
	}

	if resp := f.do(t, http.MethodGet, "/api/recordings/missing/audio", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing audio = %d", resp.StatusCode)
	}
}

func TestRecordingsDisabled(t *testing.T) {
	f := newFixture(t, false)
	if resp := f.do(t, http.MethodGet, "/api/recordings", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("recordings = %d", resp.StatusCode)
	}
}

func streamURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream?" + query
}

func TestStream(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/api/start_recording", nil)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(f.ts, "rate=16000&format=s16le"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	data := pcm.Encode(pcm.S16LE, modeltest.Tone(16000, 2, 220, 0.19))
	// Odd frame sizes split samples across messages.
	for off := 0; off < len(data); off += 641 {
		end := min(off+641, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[off:end]); err != nil {
			t.Fatal(err)
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	// The server echoes the close frame after consuming every prior message.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	var res recorder.Result
	f.do(t, http.MethodPost, "/api/stop_recording", &res)
	if res.Status != recorder.StatusSuccess {
		t.Fatalf("stop = %+v", res)
	}
	if res.AudioDuration < 1.8 || res.AudioDuration > 2.05 {
		t.Fatalf("audio_duration = %v", res.AudioDuration)
	}
}

// waitStreamReleased dials until the stream slot is free, which happens
// only after the previous connection's handler has returned.
func waitStreamReleased(t *testing.T, ts *httptest.Server) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, _, err := websocket.DefaultDialer.Dial(streamURL(ts, ""), nil)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stream slot not released")
}

func TestStreamResampledFullSecond(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/api/start_recording", nil)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(f.ts, "rate=44100&format=s16le"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	data := pcm.Encode(pcm.S16LE, modeltest.Tone(44100, 1, 220, 0.19))
	for off := 0; off < len(data); off += 1764 {
		end := min(off+1764, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[off:end]); err != nil {
			t.Fatal(err)
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	waitStreamReleased(t, f.ts)

	var res recorder.Result
	f.do(t, http.MethodPost, "/api/stop_recording", &res)
	if res.Status != recorder.StatusSuccess {
		t.Fatalf("stop = %+v", res)
	}
	if res.AudioDuration < 1 {
		t.Fatalf("audio_duration = %v, want at least 1s", res.AudioDuration)
	}
}

func TestStreamBusy(t *testing.T) {
	f := newFixture(t, false)
	conn, _, err := websocket.DefaultDialer.Dial(streamURL(f.ts, ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(f.ts, ""), nil)
	if err == nil {
		t.Fatal("second stream connection accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("second dial response = %v", resp)
	}
}

func TestStreamBadQuery(t *testing.T) {
	f := newFixture(t, false)
	for _, q := range []string{"format=mulaw", "rate=-1", "rate=abc"} {
		_, resp, err := websocket.DefaultDialer.Dial(streamURL(f.ts, q), nil)
		if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: err = %v, resp = %v", q, err, resp)
		}
	}
}

func TestServeShutdownStopsRecording(t *testing.T) {
	pipe := capture.NewPipe(rate)
	p := predict.New(modeltest.Artifacts(features.Dim(features.DefaultConfig())))
	session := recorder.New(pipe, p)
	srv := New(session, p, WithPipe(pipe))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln, ServeOptions{ReadHeaderTimeout: time.Second, ShutdownTimeout: 5 * time.Second})
	}()

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/start_recording", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !session.IsRecording() {
		t.Fatal("not recording after start")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
	if session.IsRecording() {
		t.Fatal("recording still active after shutdown")
	}
}
