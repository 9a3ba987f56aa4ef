package whatsapp

import (
	"context"
	"sync"
	"sync/atomic"
)

type ResponseKind int

const (
	ResponsePairing ResponseKind = iota + 1
	ResponseConnected
	ResponseFailed
)

// FirstResponse is the first lifecycle outcome reported to the caller that
// started a session.
type FirstResponse struct {
	Kind      ResponseKind
	QRDataURL string
	Message   string
}

// ResultSlot is a deliver-once result. Only the first Deliver is kept;
// later lifecycle events go to the log only.
type ResultSlot struct {
	once      sync.Once
	delivered atomic.Bool
	ch        chan FirstResponse
}

func NewResultSlot() *ResultSlot {
	return &ResultSlot{ch: make(chan FirstResponse, 1)}
}

// Deliver stores r if nothing was delivered before and reports whether it did.
func (s *ResultSlot) Deliver(r FirstResponse) bool {
	ok := false
	s.once.Do(func() {
		s.delivered.Store(true)
		s.ch <- r
		ok = true
	})
	return ok
}

func (s *ResultSlot) Delivered() bool {
	return s.delivered.Load()
}

// Wait blocks until a response is delivered or ctx is done.
func (s *ResultSlot) Wait(ctx context.Context) (FirstResponse, error) {
	select {
	case r := <-s.ch:
		return r, nil
	case <-ctx.Done():
		return FirstResponse{}, ctx.Err()
	}
}

// Caller tells the supervisor who started a session: an API call waiting on a
// slot, or a headless restore with nobody to notify.
type Caller struct {
	slot *ResultSlot
}

func Originating(slot *ResultSlot) Caller {
	return Caller{slot: slot}
}

func Headless() Caller {
	return Caller{}
}

func (c Caller) Headless() bool {
	return c.slot == nil
}

// Pending reports whether the caller still waits for its first response.
func (c Caller) Pending() bool {
	return c.slot != nil && !c.slot.Delivered()
}

// Deliver hands r to an originating caller. It is a no-op for headless
// callers and after the first delivery.
func (c Caller) Deliver(r FirstResponse) bool {
	if c.slot == nil {
		return false
	}
	return c.slot.Deliver(r)
}
