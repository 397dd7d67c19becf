package activity

import (
	"encoding/json"
	"net"
	"sync"
	"time"
)

// Publisher sends events to the activity socket as JSON datagrams.
// It is strictly fire-and-forget: no listener, a full buffer, or a
// vanished socket never slows the daemon down or produces an error.
// A nil *Publisher is a no-op.
type Publisher struct {
	path  string
	runID string

	mu   sync.Mutex
	conn *net.UnixConn
}

func NewPublisher(socketPath, runID string) *Publisher {
	return &Publisher{path: socketPath, runID: runID}
}

func (p *Publisher) RunID() string {
	if p == nil {
		return ""
	}
	return p.runID
}

// Publish emits one event. Dial happens lazily on first use and is
// retried on the next call after any send failure, so a status view
// started later still picks up the feed.
func (p *Publisher) Publish(kind, target, detail string) {
	if p == nil {
		return
	}
	e := Event{
		Kind:   kind,
		RunID:  p.runID,
		TS:     time.Now().UTC(),
		Target: target,
		Detail: detail,
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		addr, err := net.ResolveUnixAddr("unixgram", p.path)
		if err != nil {
			return
		}
		conn, err := net.DialUnix("unixgram", nil, addr)
		if err != nil {
			return
		}
		p.conn = conn
	}
	if _, err := p.conn.Write(payload); err != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
