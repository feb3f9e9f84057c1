package capture

import (
	"context"
	"sync"

	"github.com/haivivi/voicemood/pkg/buffer"
)

// Pipe is a Device whose samples are pushed with Write. Samples written
// while no stream is open are discarded. Opening a stream closes the
// previous one.
type Pipe struct {
	rate int

	mu  sync.Mutex
	cur *pipeStream
}

// NewPipe creates a Pipe delivering samples at rate Hz.
func NewPipe(rate int) *Pipe {
	return &Pipe{rate: rate}
}

func (p *Pipe) SampleRate() int { return p.rate }

func (p *Pipe) Name() string { return "pipe" }

// Open starts a stream that receives subsequent writes.
func (p *Pipe) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &pipeStream{pipe: p, buf: buffer.N[float32](p.rate)}
	p.mu.Lock()
	prev := p.cur
	p.cur = s
	p.mu.Unlock()
	if prev != nil {
		prev.buf.CloseWrite()
	}
	return s, nil
}

// Active reports whether a stream is open.
func (p *Pipe) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Write delivers samples to the open stream. It returns the number of
// samples accepted, zero when no stream is open.
func (p *Pipe) Write(samples []float32) (int, error) {
	p.mu.Lock()
	s := p.cur
	p.mu.Unlock()
	if s == nil {
		return 0, nil
	}
	n, err := s.buf.Write(samples)
	if err != nil {
		// The stream was closed between the lookup and the write.
		return 0, nil
	}
	return n, nil
}

func (p *Pipe) detach(s *pipeStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == s {
		p.cur = nil
	}
}

type pipeStream struct {
	pipe *Pipe
	buf  *buffer.Buffer[float32]
}

func (s *pipeStream) Read(buf []float32) (int, error) {
	return s.buf.Read(buf)
}

func (s *pipeStream) Close() error {
	s.pipe.detach(s)
	return s.buf.CloseWrite()
}
