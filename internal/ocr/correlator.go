package ocr

import "sync"

// outcome is what a pending caller receives: text or an error.
type outcome struct {
	text string
	err  error
}

// correlator maps request ids to the channel of the caller awaiting them.
// One correlator belongs to one worker session. Once failed it rejects new
// registrations with the failure error, so nothing can wait on a session
// that will never answer.
type correlator struct {
	mu      sync.Mutex
	pending map[string]chan outcome
	failed  error
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]chan outcome)}
}

// register adds a handle for id. The returned channel receives exactly one
// outcome unless the handle is forgotten first.
func (c *correlator) register(id string) (<-chan outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed != nil {
		return nil, c.failed
	}
	ch := make(chan outcome, 1)
	c.pending[id] = ch
	return ch, nil
}

// resolve delivers o to the handle for id and removes it. It reports false
// for unknown ids (already resolved, cancelled, or never issued).
func (c *correlator) resolve(id string, o outcome) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- o
	}
	return ok
}

// forget drops the handle for id without resolving it.
func (c *correlator) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failAll resolves every pending handle with err, clears the table and
// rejects later registrations. It returns how many handles were failed.
func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	if c.failed == nil {
		c.failed = err
	}
	chans := c.pending
	c.pending = make(map[string]chan outcome)
	c.mu.Unlock()
	for _, ch := range chans {
		ch <- outcome{err: err}
	}
	return len(chans)
}

func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
