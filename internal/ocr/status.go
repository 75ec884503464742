package ocr

import "time"

// InstanceStatus is a read-only projection of one Instance.
type InstanceStatus struct {
	Model       string
	Charset     string
	State       State
	PID         int
	Pending     int
	Subscribers int
	LastActive  time.Time
	LastError   string
}

// Status returns a snapshot of the instance.
func (i *Instance) Status() InstanceStatus {
	i.mu.Lock()
	st := InstanceStatus{
		Model:       i.cfg.Model,
		Charset:     i.cfg.Charset.String(),
		State:       i.state,
		Subscribers: i.subscribers,
		LastActive:  i.lastActive,
		LastError:   i.lastErr,
	}
	s := i.sess
	i.mu.Unlock()
	if s != nil {
		st.PID = s.proc.pid
		st.Pending = s.pending.size()
	}
	return st
}
