package envelope

import "sync"

// Tracker checks that frames arrive in order: sequence numbers start at
// 1, increase by one, and nothing follows the final frame.
type Tracker struct {
	mu      sync.Mutex
	lastSeq uint64
	final   bool
}

// NewTracker creates a Tracker expecting seq 1 next.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Process records f, or returns a *SequenceError and leaves the state
// unchanged.
func (t *Tracker) Process(f *Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.final {
		return &SequenceError{Expected: t.lastSeq, Got: f.Seq, Reason: "frame after final"}
	}
	if f.Seq <= t.lastSeq {
		return &SequenceError{Expected: t.lastSeq + 1, Got: f.Seq, Reason: "sequence not monotonic"}
	}
	if f.Seq != t.lastSeq+1 {
		return &SequenceError{Expected: t.lastSeq + 1, Got: f.Seq, Reason: "sequence gap"}
	}

	t.lastSeq = f.Seq
	t.final = f.Final
	return nil
}

// LastSeq returns the last accepted sequence number, 0 if none.
func (t *Tracker) LastSeq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeq
}

// Done reports whether the final frame has been seen.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.final
}
