package capture

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func readAll(t *testing.T, s Stream) []float32 {
	t.Helper()
	var out []float32
	buf := make([]float32, 256)
	for {
		n, err := s.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestPipeDiscardsWithoutStream(t *testing.T) {
	p := NewPipe(48000)
	if n, err := p.Write([]float32{1, 2, 3}); n != 0 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if p.Active() {
		t.Fatal("Active without stream")
	}
}

func TestPipeStream(t *testing.T) {
	ctx := context.Background()
	p := NewPipe(48000)
	s, err := p.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Active() {
		t.Fatal("not active after Open")
	}
	if n, _ := p.Write([]float32{1, 2, 3}); n != 3 {
		t.Fatalf("Write = %d", n)
	}
	p.Write([]float32{4})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if p.Active() {
		t.Fatal("active after Close")
	}
	if n, _ := p.Write([]float32{5}); n != 0 {
		t.Fatal("write after close accepted")
	}

	got := readAll(t, s)
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("got %v", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPipeCloseUnblocksRead(t *testing.T) {
	p := NewPipe(16000)
	s, err := p.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]float32, 16))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Close()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("Read err = %v, want EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestPipeOpenReplacesStream(t *testing.T) {
	ctx := context.Background()
	p := NewPipe(16000)
	first, _ := p.Open(ctx)
	p.Write([]float32{1})
	second, _ := p.Open(ctx)
	p.Write([]float32{2, 3})
	second.Close()

	if got := readAll(t, first); len(got) != 1 || got[0] != 1 {
		t.Fatalf("first = %v", got)
	}
	if got := readAll(t, second); len(got) != 2 {
		t.Fatalf("second = %v", got)
	}
	// Closing the replaced stream must not detach the current one.
	third, _ := p.Open(ctx)
	first.Close()
	if !p.Active() {
		t.Fatal("closing a replaced stream detached the current one")
	}
	third.Close()
}

func TestPipeOpenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPipe(16000).Open(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestResampleSameRate(t *testing.T) {
	p := NewPipe(48000)
	if Resample(p, 48000) != Device(p) {
		t.Fatal("same rate should return the device itself")
	}
}

func TestResampleStream(t *testing.T) {
	p := NewPipe(16000)
	dev := Resample(p, 48000)
	if dev.SampleRate() != 48000 || dev.Name() != "pipe@48000" {
		t.Fatalf("device = %s at %d", dev.Name(), dev.SampleRate())
	}
	s, err := dev.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	chunk := make([]float32, 1600)
	for i := range chunk {
		chunk[i] = 0.1
	}

	done := make(chan []float32, 1)
	go func() {
		var out []float32
		buf := make([]float32, 1000)
		for {
			n, err := s.Read(buf)
			out = append(out, buf[:n]...)
			if err != nil {
				done <- out
				return
			}
		}
	}()
	for range 10 {
		p.Write(chunk)
	}
	s.Close()

	select {
	case got := <-done:
		if len(got) < 47950 || len(got) > 49000 {
			t.Fatalf("got %d samples, want ~48000", len(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resampled stream did not finish")
	}
}

func TestResampleStreamKeepsFullSecond(t *testing.T) {
	p := NewPipe(44100)
	s, err := Resample(p, 48000).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	chunk := make([]float32, 441)
	for i := range chunk {
		chunk[i] = 0.1
	}
	for range 100 {
		p.Write(chunk)
	}
	s.Close()

	// The filter tail is drained at end of stream, so one second in is at
	// least one second out.
	if got := readAll(t, s); len(got) < 48000 {
		t.Fatalf("got %d samples, want at least 48000", len(got))
	}
}

func TestPortAudioStub(t *testing.T) {
	d := NewPortAudio(48000, 100*time.Millisecond)
	if d.SampleRate() != 48000 || d.Name() != "portaudio" {
		t.Fatalf("device = %s at %d", d.Name(), d.SampleRate())
	}
	// Nothing was opened, so there is nothing to release.
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
