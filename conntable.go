package resthttpd

import "sync"

// connTable is the fixed-size connection slot table of §3: every live
// connection holds one slot (its clientIndex) from accept until close,
// and Config.MaxClients bounds how many may be live at once. Stop uses
// the table to wake connections parked between requests immediately,
// and to force-close whatever is still live once the wait deadline
// passes.
type connTable struct {
	mu    sync.Mutex
	slots []*connState
}

func newConnTable(maxClients int) *connTable {
	return &connTable{slots: make([]*connState, maxClients)}
}

// add reserves a slot for cs and returns its clientIndex, or ok=false
// when every slot is taken — the accept loop refuses the connection in
// that case.
func (t *connTable) add(cs *connState) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = cs
			return i, true
		}
	}
	return -1, false
}

// remove frees cs's slot. Safe to call more than once.
func (t *connTable) remove(cs *connState) {
	if cs.clientIndex < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[cs.clientIndex] == cs {
		t.slots[cs.clientIndex] = nil
	}
}

func (t *connTable) live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// closeIdle force-closes every connection that is between requests —
// IDLE, or blocked in READING_HEAD waiting for the next request head
// to arrive. Closing the socket unblocks the worker pinned to it, so
// an idle keep-alive peer can't hold Stop hostage for the full read
// timeout. Connections with a request in flight are left to finish.
func (t *connTable) closeIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s == nil {
			continue
		}
		switch s.getPhase() {
		case PhaseIdle, PhaseReadingHead:
			s.netConn.Close()
		}
	}
}

// closeAll force-closes every remaining connection, in-flight requests
// included. Called once Stop's wait deadline has passed and the
// remaining workers are being abandoned.
func (t *connTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s != nil {
			s.netConn.Close()
		}
	}
}
