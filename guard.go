package main

import (
	"context"
	"net/http"
	"os"
)

// pageOrigin tags every message the interceptor and relay exchange.
const pageOrigin = "orcho-risk-guard"

// Guard wires the interceptor to the daemon: interceptor -> bus -> relay ->
// daemon socket, and back.
type Guard struct {
	Interceptor *Interceptor

	channel *RiskChannel
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewGuard starts a relay bound to forwarder and returns a guard whose
// interceptor wraps base. The relay is listening before NewGuard returns.
func NewGuard(base http.RoundTripper, forwarder Forwarder, confirmer Confirmer, cfg Config) *Guard {
	bus := NewBus()
	channel := NewRiskChannel(bus, pageOrigin)
	if cfg.QueryTimeout > 0 {
		channel.QueryTimeout = cfg.QueryTimeout
	}
	relay := NewRelay(bus, pageOrigin, forwarder)
	relay.ForwardTimeout = channel.QueryTimeout

	ctx, cancel := context.WithCancel(context.Background())
	g := &Guard{
		Interceptor: NewInterceptor(base, channel, confirmer),
		channel:     channel,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go func() {
		defer close(g.done)
		relay.Run(ctx)
	}()
	return g
}

// Close stops the relay and releases waiting queries.
func (g *Guard) Close() {
	g.cancel()
	<-g.done
	g.channel.Close()
}

// newConfirmer picks the confirmation surface for cfg.OnHigh. "ask" needs a
// terminal; without one, high-risk requests are blocked.
func newConfirmer(cfg Config) (Confirmer, func()) {
	if d, ok := ParseDecision(cfg.OnHigh); ok {
		return PolicyConfirmer{Decision: d}, func() {}
	}
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return PolicyConfirmer{Decision: DecisionBlock}, func() {}
	}
	return NewTerminalConfirmer(tty, tty), func() { tty.Close() }
}
