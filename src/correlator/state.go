package correlator

import (
	"sync"
	"time"
)

// State is the stage of a pending exchange.
type State int

const (
	Built State = iota
	Published
	Resolved
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Built:
		return "Built"
	case Published:
		return "Published"
	case Resolved:
		return "Resolved"
	case TimedOut:
		return "TimedOut"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// pending tracks one outstanding request. It ends exactly once: the first
// call to finish wins, and the teardown runs with it.
type pending struct {
	sync.Mutex
	requestID string
	recipient string
	deadline  time.Time
	state     State

	once     sync.Once
	teardown func()
}

func (p *pending) setState(s State) {
	p.Lock()
	defer p.Unlock()
	p.state = s
}

func (p *pending) getState() State {
	p.Lock()
	defer p.Unlock()
	return p.state
}

func (p *pending) done() bool {
	s := p.getState()
	return s == Resolved || s == TimedOut || s == Failed
}

// finish moves p to a terminal state and runs the teardown. It returns false
// if p had already ended.
func (p *pending) finish(s State) bool {
	p.Lock()
	if p.state == Resolved || p.state == TimedOut || p.state == Failed {
		p.Unlock()
		return false
	}
	p.state = s
	p.Unlock()

	p.once.Do(func() {
		if p.teardown != nil {
			p.teardown()
		}
	})
	return true
}
