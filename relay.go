package main

import (
	"context"
	"sync"
	"time"
)

// Forwarder carries a query across the privileged boundary and returns the
// privileged side's answer.
type Forwarder interface {
	Forward(ctx context.Context, q RiskQuery) (RiskResult, error)
}

// Relay bridges risk-query messages on the bus to a Forwarder and posts the
// answers back as risk-reply messages. It is the only component that holds
// a Forwarder.
type Relay struct {
	bus       *Bus
	origin    string
	forwarder Forwarder

	// ForwardTimeout bounds one forward. A reply later than the querying
	// side's own timeout would be dropped anyway.
	ForwardTimeout time.Duration

	msgs        <-chan Message
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewRelay creates a relay that only serves messages from origin. It is
// subscribed to bus on return, so queries posted before Run starts are
// still served.
func NewRelay(bus *Bus, origin string, forwarder Forwarder) *Relay {
	msgs, unsubscribe := bus.Subscribe()
	return &Relay{
		bus:            bus,
		origin:         origin,
		forwarder:      forwarder,
		ForwardTimeout: DefaultQueryTimeout,
		msgs:           msgs,
		unsubscribe:    unsubscribe,
	}
}

// Run serves queries until ctx is cancelled, then waits for in-flight
// forwards to finish.
func (r *Relay) Run(ctx context.Context) {
	defer func() {
		r.unsubscribe()
		r.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.msgs:
			if !ok {
				return
			}
			if msg.Origin != r.origin || msg.Type != MessageRiskQuery {
				continue
			}
			r.wg.Add(1)
			go func(msg Message) {
				defer r.wg.Done()
				r.relay(ctx, msg)
			}(msg)
		}
	}
}

func (r *Relay) relay(ctx context.Context, msg Message) {
	if r.ForwardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.ForwardTimeout)
		defer cancel()
	}

	result, err := r.forwarder.Forward(ctx, RiskQuery{
		Prompt:    msg.Prompt,
		RequestID: msg.RequestID,
	})
	if err != nil {
		logDecision("", "ALLOW", "relay", err.Error())
		result = lowRisk()
	}

	r.bus.Post(Message{
		Origin:    r.origin,
		Type:      MessageRiskReply,
		RequestID: msg.RequestID,
		Result:    &result,
	})
}
