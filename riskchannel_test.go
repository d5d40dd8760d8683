package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nextQuery waits for the next risk-query posted on the bus.
func nextQuery(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Type == MessageRiskQuery {
				return msg
			}
		case <-timeout:
			t.Fatal("no risk-query posted")
			return Message{}
		}
	}
}

func reply(origin, id string, result RiskResult) Message {
	return Message{Origin: origin, Type: MessageRiskReply, RequestID: id, Result: &result}
}

func TestRiskChannelResolvesMatchingReply(t *testing.T) {
	bus := NewBus()
	sub, cancel := bus.Subscribe()
	defer cancel()

	rc := NewRiskChannel(bus, "page")
	defer rc.Close()

	got := make(chan RiskResult, 1)
	go func() { got <- rc.Query(context.Background(), "hello") }()

	q := nextQuery(t, sub)
	assert.Equal(t, "page", q.Origin)
	assert.Equal(t, "hello", q.Prompt)
	assert.NotEmpty(t, q.RequestID)

	want := RiskResult{Level: RiskHigh, Score: 77}
	bus.Post(reply("page", q.RequestID, want))

	select {
	case result := <-got:
		assert.Equal(t, want, result)
	case <-time.After(2 * time.Second):
		t.Fatal("query did not resolve")
	}
	assert.Equal(t, 0, rc.Pending())
}

func TestRiskChannelTimeout(t *testing.T) {
	bus := NewBus()
	rc := NewRiskChannel(bus, "page")
	defer rc.Close()
	rc.QueryTimeout = 100 * time.Millisecond

	start := time.Now()
	result := rc.Query(context.Background(), "nobody answers")

	assert.Equal(t, lowRisk(), result)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, rc.Pending(), "timed-out query must be released")
}

func TestRiskChannelDefaultTimeout(t *testing.T) {
	rc := NewRiskChannel(NewBus(), "page")
	defer rc.Close()
	assert.Equal(t, 10*time.Second, rc.QueryTimeout)
}

func TestRiskChannelIgnoresStaleAndForeignReplies(t *testing.T) {
	bus := NewBus()
	sub, cancel := bus.Subscribe()
	defer cancel()

	rc := NewRiskChannel(bus, "page")
	defer rc.Close()

	got := make(chan RiskResult, 1)
	go func() { got <- rc.Query(context.Background(), "hello") }()
	q := nextQuery(t, sub)

	wrong := RiskResult{Level: RiskHigh, Score: 99}
	bus.Post(reply("page", "some-other-id", wrong))
	bus.Post(reply("evil.example", q.RequestID, wrong))
	bus.Post(Message{Origin: "page", Type: MessageRiskQuery, RequestID: q.RequestID, Result: &wrong})

	select {
	case result := <-got:
		t.Fatalf("resolved with a foreign reply: %+v", result)
	case <-time.After(200 * time.Millisecond):
	}

	right := RiskResult{Level: RiskLow, Score: 12}
	bus.Post(reply("page", q.RequestID, right))

	select {
	case result := <-got:
		assert.Equal(t, right, result)
	case <-time.After(2 * time.Second):
		t.Fatal("query did not resolve")
	}
}

func TestRiskChannelConcurrentQueries(t *testing.T) {
	bus := NewBus()
	sub, cancel := bus.Subscribe()
	defer cancel()

	rc := NewRiskChannel(bus, "page")
	defer rc.Close()

	results := make(map[string]chan RiskResult)
	for _, p := range []string{"a", "b", "c"} {
		ch := make(chan RiskResult, 1)
		results[p] = ch
		go func(p string) { ch <- rc.Query(context.Background(), p) }(p)
	}

	ids := make(map[string]string)
	for i := 0; i < 3; i++ {
		q := nextQuery(t, sub)
		ids[q.Prompt] = q.RequestID
	}
	require.Len(t, ids, 3)

	// Answer out of order, score tells the prompts apart.
	bus.Post(reply("page", ids["c"], RiskResult{Level: RiskLow, Score: 3}))
	bus.Post(reply("page", ids["a"], RiskResult{Level: RiskLow, Score: 1}))
	bus.Post(reply("page", ids["b"], RiskResult{Level: RiskLow, Score: 2}))

	for p, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		select {
		case result := <-results[p]:
			assert.Equal(t, want, result.Score, "prompt %s", p)
		case <-time.After(2 * time.Second):
			t.Fatalf("query %s did not resolve", p)
		}
	}
}

func TestRiskChannelContextCancel(t *testing.T) {
	rc := NewRiskChannel(NewBus(), "page")
	defer rc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, lowRisk(), rc.Query(ctx, "hello"))
	assert.Equal(t, 0, rc.Pending())
}

func TestRiskChannelCloseReleasesWaiters(t *testing.T) {
	bus := NewBus()
	sub, cancel := bus.Subscribe()
	defer cancel()

	rc := NewRiskChannel(bus, "page")

	got := make(chan RiskResult, 1)
	go func() { got <- rc.Query(context.Background(), "hello") }()
	nextQuery(t, sub)

	rc.Close()

	select {
	case result := <-got:
		assert.Equal(t, lowRisk(), result)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release waiter")
	}

	assert.Equal(t, lowRisk(), rc.Query(context.Background(), "after close"))
}
