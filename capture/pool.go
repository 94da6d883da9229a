package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Browser sessions are the scarce resource that bounds the whole system:
// each headless tab costs real memory and CPU, so the pool capacity is
// also the job worker bound.

// session wraps a pooled page with health tracking. Pages accumulate
// error score on failures and are retired when unhealthy, too old, or
// heavily reused.
type session struct {
	page     *rod.Page
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func (s *session) recordResult(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useCount++
	if ok {
		if s.errScore >= 0.5 {
			s.errScore -= 0.5
		} else {
			s.errScore = 0
		}
	} else {
		s.errScore += 1.0
	}
}

func (s *session) shouldRetire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errScore >= 3.0 || s.useCount >= 50 || time.Since(s.created) >= 50*time.Minute
}

// SessionPool manages reusable browser pages up to a hard capacity.
// Get blocks when all sessions are checked out, which serialises excess
// jobs behind the session budget.
type SessionPool struct {
	browser *rod.Browser
	max     int

	idle    chan *session
	mu      sync.Mutex
	total   int
	active  atomic.Int32
	stopped bool
}

// NewSessionPool creates a pool and pre-warms min sessions.
func NewSessionPool(browser *rod.Browser, min, max int) *SessionPool {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	p := &SessionPool{
		browser: browser,
		max:     max,
		idle:    make(chan *session, max),
	}
	for i := 0; i < min; i++ {
		s, err := p.create()
		if err != nil {
			slog.Warn("session pool: pre-warm failed", "error", err)
			continue
		}
		p.idle <- s
	}
	return p
}

// Get acquires a session, creating one if under capacity, otherwise
// blocking until a session is returned.
func (p *SessionPool) Get() (*session, error) {
	select {
	case s := <-p.idle:
		p.active.Add(1)
		return s, nil
	default:
	}

	p.mu.Lock()
	if p.total < p.max {
		s, err := p.createLocked()
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		p.active.Add(1)
		return s, nil
	}
	p.mu.Unlock()

	s := <-p.idle
	p.active.Add(1)
	return s, nil
}

// Put returns a session, retiring it when unhealthy.
func (p *SessionPool) Put(s *session, ok bool) {
	p.active.Add(-1)
	s.recordResult(ok)

	if s.shouldRetire() {
		slog.Debug("session pool: retiring session",
			"useCount", s.useCount, "errScore", s.errScore)
		p.destroy(s)
		return
	}
	p.idle <- s
}

// Stats reports capacity and checked-out count.
func (p *SessionPool) Stats() (max, active int) {
	return p.max, int(p.active.Load())
}

// Stop drains and closes every idle session.
func (p *SessionPool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	for {
		select {
		case s := <-p.idle:
			p.destroy(s)
		default:
			return
		}
	}
}

func (p *SessionPool) create() (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked()
}

func (p *SessionPool) createLocked() (*session, error) {
	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	p.total++
	return &session{page: page, created: time.Now()}, nil
}

func (p *SessionPool) destroy(s *session) {
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
	if err := s.page.Close(); err != nil {
		slog.Warn("session pool: close page", "error", err)
	}
}
