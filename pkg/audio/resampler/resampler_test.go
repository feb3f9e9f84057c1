package resampler

import (
	"math"
	"testing"
)

func sine(sr int, seconds, freq float64) []float32 {
	out := make([]float32, int(float64(sr)*seconds))
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

// crossings counts sign changes from negative to non-negative.
func crossings(x []float32) int {
	n := 0
	for i := 1; i < len(x); i++ {
		if x[i-1] < 0 && x[i] >= 0 {
			n++
		}
	}
	return n
}

func rms(x []float32) float64 {
	var sum float64
	for _, s := range x {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestNewInvalidRates(t *testing.T) {
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 16000}} {
		if _, err := New(rates[0], rates[1]); err == nil {
			t.Errorf("New(%d, %d) should fail", rates[0], rates[1])
		}
	}
}

func TestPassthrough(t *testing.T) {
	in := sine(48000, 0.1, 440)
	out, err := Resample(in, 48000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed", i)
		}
	}
	out[0] = 2
	if in[0] == 2 {
		t.Fatal("passthrough must copy")
	}
}

func TestResampleLengthAndPitch(t *testing.T) {
	tests := []struct {
		src, dst int
	}{
		{44100, 48000},
		{16000, 48000},
		{48000, 22050},
	}
	for _, tt := range tests {
		in := sine(tt.src, 1, 440)
		out, err := Resample(in, tt.src, tt.dst)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != tt.dst {
			t.Errorf("%d->%d: len = %d, want %d", tt.src, tt.dst, len(out), tt.dst)
		}
		// One second of 440 Hz: about 440 upward crossings at any rate.
		if c := crossings(out); c < 400 || c > 450 {
			t.Errorf("%d->%d: %d crossings, want ~440", tt.src, tt.dst, c)
		}
	}
}

func TestResampleKeepsTail(t *testing.T) {
	tests := []struct {
		src, dst int
	}{
		{44100, 48000},
		{16000, 48000},
		{48000, 22050},
	}
	for _, tt := range tests {
		out, err := Resample(sine(tt.src, 1, 440), tt.src, tt.dst)
		if err != nil {
			t.Fatal(err)
		}
		// The final 50 ms still carries the full-level 440 Hz tone.
		last := out[len(out)-tt.dst/20:]
		if c := crossings(last); c < 19 || c > 25 {
			t.Errorf("%d->%d: tail has %d crossings, want ~22", tt.src, tt.dst, c)
		}
		if r := rms(last); r < 0.3 || r > 0.4 {
			t.Errorf("%d->%d: tail rms = %.3f, want ~0.354", tt.src, tt.dst, r)
		}
	}
}

func TestPassthroughFlush(t *testing.T) {
	r, err := New(48000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Flush()
	if err != nil || out != nil {
		t.Fatalf("Flush() = %v, %v", out, err)
	}
}

func TestStreamProcess(t *testing.T) {
	r, err := New(16000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if r.SourceRate() != 16000 || r.TargetRate() != 48000 {
		t.Fatalf("rates = %d -> %d", r.SourceRate(), r.TargetRate())
	}
	in := sine(16000, 1, 300)
	var total int
	for off := 0; off < len(in); off += 1600 {
		out, err := r.Process(in[off : off+1600])
		if err != nil {
			t.Fatal(err)
		}
		total += len(out)
	}
	tail, err := r.Flush()
	if err != nil {
		t.Fatal(err)
	}
	total += len(tail)
	if total < 47900 || total > 49000 {
		t.Fatalf("streamed %d samples, want ~48000", total)
	}
}
