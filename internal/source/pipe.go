package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Pipe adapts a stream of newline-delimited JSON Records into a Source.
//
// A companion process (the actual OS listener, e.g. a small PowerShell or
// WinRT helper) writes one Record per line; Poll drains whatever arrived
// since the previous call. This keeps the engine runnable and testable on
// any platform.
type Pipe struct {
	mu     sync.Mutex
	buf    []Record
	err    error
	closed bool
}

// NewPipe starts reading records from r in the background. Malformed lines
// are skipped; a read error (including EOF) makes subsequent Polls fail with
// ErrUnavailable once the buffer is drained.
func NewPipe(r io.Reader) *Pipe {
	p := &Pipe{}
	go p.read(r)
	return p
}

func (p *Pipe) read(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		p.mu.Lock()
		p.buf = append(p.buf, rec)
		p.mu.Unlock()
	}
	p.mu.Lock()
	p.closed = true
	p.err = sc.Err()
	p.mu.Unlock()
}

func (p *Pipe) RequestAccess(ctx context.Context) (bool, error) {
	return true, nil
}

func (p *Pipe) Poll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 && p.closed {
		return nil, ErrUnavailable
	}
	out := p.buf
	p.buf = nil
	return out, nil
}
