package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	b := New()
	b.Start(context.Background())
	t.Cleanup(b.Stop)
	return b
}

// recorder collects delivered topics in order.
type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) handler(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, msg.Topic)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.topics))
	copy(out, r.topics)
	return out
}

func TestPriorityDispatchOrder(t *testing.T) {
	b := New()
	rec := &recorder{}
	b.Subscribe("rec", "*", rec.handler)

	// Enqueue before starting so the dispatcher sees all four at once.
	b.Publish("critical", nil, WithPriority(PriorityCritical))
	b.Publish("low", nil, WithPriority(PriorityLow))
	b.Publish("high", nil, WithPriority(PriorityHigh))
	b.Publish("normal", nil, WithPriority(PriorityNormal))

	b.Start(context.Background())
	defer b.Stop()

	require.Eventually(t, func() bool {
		return len(rec.got()) == 4
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, rec.got())
}

func TestWildcardMatching(t *testing.T) {
	b := startBus(t)

	exact := &recorder{}
	prefix := &recorder{}
	suffix := &recorder{}
	all := &recorder{}
	b.Subscribe("exact", "ingestion.completed", exact.handler)
	b.Subscribe("prefix", "ingestion.*", prefix.handler)
	b.Subscribe("suffix", "*.completed", suffix.handler)
	b.Subscribe("all", "*", all.handler)

	b.Publish("ingestion.completed", nil)
	b.Publish("linking.completed", nil)
	b.Publish("ingestion.started", nil)

	require.Eventually(t, func() bool {
		return len(all.got()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"ingestion.completed"}, exact.got())
	assert.ElementsMatch(t, []string{"ingestion.completed", "ingestion.started"}, prefix.got())
	assert.ElementsMatch(t, []string{"ingestion.completed", "linking.completed"}, suffix.got())
}

func TestTTLExpiry(t *testing.T) {
	b := New()
	rec := &recorder{}
	b.Subscribe("rec", "*", rec.handler)

	// Let the message age past its TTL before the dispatcher runs.
	b.Publish("stale", nil, WithTTL(50*time.Millisecond))
	time.Sleep(120 * time.Millisecond)

	b.Start(context.Background())
	defer b.Stop()

	require.Eventually(t, func() bool {
		return b.GetStats().Expired == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.got())
}

func TestSubscriberErrorsAreIsolated(t *testing.T) {
	b := startBus(t)

	good := &recorder{}
	b.Subscribe("bad", "topic", func(context.Context, *Message) error {
		return fmt.Errorf("boom")
	})
	b.Subscribe("good", "topic", good.handler)

	b.Publish("topic", nil)

	require.Eventually(t, func() bool {
		return len(good.got()) == 1
	}, time.Second, 5*time.Millisecond)

	stats := b.GetStats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Processed)

	letters := b.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "bad", letters[0].SubscriberID)
	assert.Equal(t, "boom", letters[0].Error)
}

func TestCircuitBreakerOpensAfterFiveFailures(t *testing.T) {
	b := startBus(t)

	var mu sync.Mutex
	attempts := 0
	b.Subscribe("flaky", "topic", func(context.Context, *Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return fmt.Errorf("always fails")
	})

	for i := 0; i < 6; i++ {
		b.Publish("topic", nil)
	}

	require.Eventually(t, func() bool {
		return b.GetStats().Failed == 6
	}, time.Second, 5*time.Millisecond)

	// The sixth delivery was skipped by the open breaker.
	mu.Lock()
	assert.Equal(t, 5, attempts)
	mu.Unlock()
	assert.Equal(t, breakerOpen, b.GetStats().Breakers["flaky"].State)
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	b := startBus(t)

	rec := &recorder{}
	b.Subscribe("probe", "topic", rec.handler)

	// Force an open breaker whose window has already elapsed.
	b.mu.Lock()
	br := newBreaker()
	br.state = breakerOpen
	br.failures = breakerThreshold
	br.lastFailure = time.Now().Add(-2 * breakerOpenTimeout)
	b.breakers["probe"] = br
	b.mu.Unlock()

	b.Publish("topic", nil)

	require.Eventually(t, func() bool {
		return len(rec.got()) == 1
	}, time.Second, 5*time.Millisecond)

	// The successful probe closed the breaker and reset the counter.
	state := b.GetStats().Breakers["probe"]
	assert.Equal(t, breakerClosed, state.State)
	assert.Zero(t, state.Failures)
}

func TestRequestResponse(t *testing.T) {
	b := startBus(t)

	b.Subscribe("responder", "query", func(_ context.Context, msg *Message) error {
		b.Respond(msg, map[string]any{"answer": 42})
		return nil
	})

	resp, err := b.Request(context.Background(), "query", map[string]any{"q": "life"}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 42, resp.Payload["answer"])
	assert.Equal(t, TypeResponse, resp.Type)
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestRequestTimeoutCleansUpSubscription(t *testing.T) {
	b := startBus(t)

	before := b.SubscriptionCount()
	start := time.Now()
	resp, err := b.Request(context.Background(), "nobody-listens", nil, 200*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Less(t, elapsed, 250*time.Millisecond)
	assert.Equal(t, before, b.SubscriptionCount())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := startBus(t)

	rec := &recorder{}
	subID := b.Subscribe("rec", "topic", rec.handler)

	b.Publish("topic", nil)
	require.Eventually(t, func() bool {
		return len(rec.got()) == 1
	}, time.Second, 5*time.Millisecond)

	b.Unsubscribe(subID)
	b.Publish("topic", nil)

	// Second publish drains with no subscriber.
	require.Eventually(t, func() bool {
		return b.GetStats().QueueSizes["normal"] == 0
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.got(), 1)
	assert.Zero(t, b.SubscriptionCount())
}

func TestUnsubscribeWithColonInSubscriberID(t *testing.T) {
	b := startBus(t)

	// The request/response path composes ids like "request:<uuid>" with
	// pattern "reply:<uuid>"; removal must work on the full opaque id.
	rec := &recorder{}
	subID := b.Subscribe("request:abc-123", "reply:abc-123", rec.handler)
	require.Equal(t, 1, b.SubscriptionCount())

	b.Unsubscribe(subID)
	assert.Zero(t, b.SubscriptionCount())

	b.Publish("reply:abc-123", nil)
	require.Eventually(t, func() bool {
		return b.GetStats().QueueSizes["normal"] == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.got())
}

func TestTopicMatches(t *testing.T) {
	assert.True(t, topicMatches("a.b", "a.b"))
	assert.True(t, topicMatches("a.b", "a.*"))
	assert.True(t, topicMatches("a.b", "*.b"))
	assert.True(t, topicMatches("anything", "*"))
	assert.False(t, topicMatches("a.b", "a.c"))
	assert.False(t, topicMatches("a.b", "b.*"))
	assert.False(t, topicMatches("a.b", "*.a"))
}

func TestHistoryRing(t *testing.T) {
	b := startBus(t)
	b.Publish("one", nil)
	b.Publish("two", nil)

	history := b.History()
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Topic)
	assert.Equal(t, "two", history[1].Topic)
}

func TestRingEviction(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.items())
	r.clear()
	assert.Zero(t, r.len())
}
