package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultQueryTimeout bounds how long an intercepted call is held waiting
// for a risk reply.
const DefaultQueryTimeout = 10 * time.Second

// RiskChannel is the interceptor's side of the cross-boundary RPC. It posts
// risk-query messages on the bus and resolves waiters from a single
// dispatcher that reads risk-reply messages.
type RiskChannel struct {
	bus          *Bus
	origin       string
	QueryTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan RiskResult

	cancel func()
	done   chan struct{}
}

// NewRiskChannel subscribes to bus and starts the reply dispatcher.
func NewRiskChannel(bus *Bus, origin string) *RiskChannel {
	ch, cancel := bus.Subscribe()
	c := &RiskChannel{
		bus:          bus,
		origin:       origin,
		QueryTimeout: DefaultQueryTimeout,
		pending:      make(map[string]chan RiskResult),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go c.dispatch(ch)
	return c
}

// Query asks for a risk assessment of prompt. It never fails: a timeout,
// cancelled context, or closed channel all yield the low-risk default.
func (c *RiskChannel) Query(ctx context.Context, prompt string) RiskResult {
	id := uuid.NewString()
	wait := make(chan RiskResult, 1)

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return lowRisk()
	}
	c.pending[id] = wait
	c.mu.Unlock()
	defer c.forget(id)

	c.bus.Post(Message{
		Origin:    c.origin,
		Type:      MessageRiskQuery,
		RequestID: id,
		Prompt:    prompt,
	})

	timer := time.NewTimer(c.QueryTimeout)
	defer timer.Stop()

	select {
	case result := <-wait:
		return result
	case <-timer.C:
		logDecision("", "ALLOW", "timeout", "no risk reply within "+c.QueryTimeout.String())
		return lowRisk()
	case <-ctx.Done():
		return lowRisk()
	}
}

// Pending returns the number of queries still awaiting a reply.
func (c *RiskChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops the dispatcher and releases every waiter with the default.
func (c *RiskChannel) Close() {
	c.cancel()
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, wait := range c.pending {
		wait <- lowRisk()
		delete(c.pending, id)
	}
	c.pending = nil
}

func (c *RiskChannel) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *RiskChannel) dispatch(ch <-chan Message) {
	defer close(c.done)
	for msg := range ch {
		if msg.Origin != c.origin || msg.Type != MessageRiskReply || msg.Result == nil {
			continue
		}

		c.mu.Lock()
		wait, ok := c.pending[msg.RequestID]
		if ok {
			delete(c.pending, msg.RequestID)
		}
		c.mu.Unlock()

		// Unknown ids are stale or foreign replies.
		if !ok {
			continue
		}
		wait <- *msg.Result
	}
}
