package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Ring capacities.
const (
	historySize    = 1000
	deadLetterSize = 1000
)

// DefaultRequestTimeout bounds request/response waits when the caller does
// not choose one.
const DefaultRequestTimeout = 30 * time.Second

// Handler consumes one delivered message. A non-nil error counts as a
// delivery failure for the subscriber's circuit breaker.
type Handler func(ctx context.Context, msg *Message) error

// Subscription is one registered topic-pattern handler.
type Subscription struct {
	ID           string
	SubscriberID string
	Pattern      string
	handler      Handler
}

// DeadLetter records one failed delivery.
type DeadLetter struct {
	Message      *Message
	SubscriberID string
	Pattern      string
	Error        string
	Timestamp    time.Time
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Sent                int                     `json:"sent"`
	Processed           int                     `json:"processed"`
	Failed              int                     `json:"failed"`
	Expired             int                     `json:"expired"`
	QueueSizes          map[string]int          `json:"queue_sizes"`
	ActiveSubscriptions int                     `json:"active_subscriptions"`
	DeadLetters         int                     `json:"dead_letters"`
	Breakers            map[string]BreakerState `json:"breakers"`
}

// Bus routes messages from priority queues to pattern subscribers on a
// single dispatcher goroutine.
type Bus struct {
	mu          sync.Mutex
	queues      [priorityCount][]*Message
	subs        map[string][]*Subscription
	byID        map[string]*Subscription
	history     *ring[*Message]
	deadLetters *ring[DeadLetter]
	breakers    map[string]*breaker

	sent      int
	processed int
	failed    int
	expired   int

	notify  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a stopped bus. Messages published before Start queue up.
func New() *Bus {
	return &Bus{
		subs:        map[string][]*Subscription{},
		byID:        map[string]*Subscription{},
		history:     newRing[*Message](historySize),
		deadLetters: newRing[DeadLetter](deadLetterSize),
		breakers:    map[string]*breaker{},
		notify:      make(chan struct{}, 1),
	}
}

// Start launches the dispatcher goroutine. Starting a running bus is a
// no-op.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.run(ctx)
	slog.Debug("message bus started")
}

// Stop halts the dispatcher. Queued messages remain queued.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	<-done
	slog.Debug("message bus stopped")
}

// PublishOption customizes a published message.
type PublishOption func(*Message)

// WithType sets the message type (default event).
func WithType(t MessageType) PublishOption { return func(m *Message) { m.Type = t } }

// WithPriority sets the dispatch priority (default normal).
func WithPriority(p Priority) PublishOption { return func(m *Message) { m.Priority = p } }

// WithSource names the publishing component (default "system").
func WithSource(source string) PublishOption { return func(m *Message) { m.Source = source } }

// WithTarget names the intended consumer; empty means broadcast.
func WithTarget(target string) PublishOption { return func(m *Message) { m.Target = target } }

// WithCorrelationID ties a response to its request.
func WithCorrelationID(id string) PublishOption { return func(m *Message) { m.CorrelationID = id } }

// WithReplyTo sets the reply topic for request messages.
func WithReplyTo(topic string) PublishOption { return func(m *Message) { m.ReplyTo = topic } }

// WithTTL drops the message if it sits queued longer than d.
func WithTTL(d time.Duration) PublishOption { return func(m *Message) { m.TTL = d } }

// Publish enqueues a message and returns its id. Publishing never fails on
// delivery problems.
func (b *Bus) Publish(topic string, payload map[string]any, opts ...PublishOption) string {
	msg := &Message{
		ID:        newMessageID(),
		Type:      TypeEvent,
		Priority:  PriorityNormal,
		Source:    "system",
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(msg)
	}

	b.mu.Lock()
	b.queues[msg.Priority] = append(b.queues[msg.Priority], msg)
	b.history.push(msg)
	b.sent++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return msg.ID
}

// Subscribe registers a handler for a topic pattern and returns the
// subscription id.
func (b *Bus) Subscribe(subscriberID, pattern string, handler Handler) string {
	sub := &Subscription{
		ID:           subscriberID + ":" + pattern,
		SubscriberID: subscriberID,
		Pattern:      pattern,
		handler:      handler,
	}

	b.mu.Lock()
	b.subs[pattern] = append(b.subs[pattern], sub)
	b.byID[sub.ID] = sub
	b.mu.Unlock()
	return sub.ID
}

// Unsubscribe removes a subscription by its id. The id is opaque; the
// pattern recorded at Subscribe time locates the bucket, so ids whose
// subscriber name itself contains separators resolve correctly.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[subscriptionID]
	if !ok {
		return
	}
	delete(b.byID, subscriptionID)

	kept := b.subs[sub.Pattern][:0]
	for _, s := range b.subs[sub.Pattern] {
		if s != sub {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, sub.Pattern)
	} else {
		b.subs[sub.Pattern] = kept
	}
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// Request publishes a request message and waits for the correlated response.
// A nil message with a nil error means the request timed out; a context
// error is returned as-is. The reply subscription is always removed.
func (b *Bus) Request(ctx context.Context, topic string, payload map[string]any, timeout time.Duration, opts ...PublishOption) (*Message, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	correlationID := newMessageID()
	replyTopic := fmt.Sprintf("reply:%s", correlationID)
	replyCh := make(chan *Message, 1)

	subID := b.Subscribe("request:"+correlationID, replyTopic, func(_ context.Context, msg *Message) error {
		select {
		case replyCh <- msg:
		default:
		}
		return nil
	})
	defer b.Unsubscribe(subID)

	opts = append(opts,
		WithType(TypeRequest),
		WithCorrelationID(correlationID),
		WithReplyTo(replyTopic))
	b.Publish(topic, payload, opts...)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-replyCh:
		return msg, nil
	case <-timer.C:
		slog.Warn("request timed out", slog.String("topic", topic))
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Respond publishes the response to a request message.
func (b *Bus) Respond(req *Message, payload map[string]any, opts ...PublishOption) {
	if req.ReplyTo == "" {
		return
	}
	opts = append(opts,
		WithType(TypeResponse),
		WithCorrelationID(req.CorrelationID))
	b.Publish(req.ReplyTo, payload, opts...)
}

// GetStats snapshots the bus counters.
func (b *Bus) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Sent:        b.sent,
		Processed:   b.processed,
		Failed:      b.failed,
		Expired:     b.expired,
		QueueSizes:  map[string]int{},
		DeadLetters: b.deadLetters.len(),
		Breakers:    map[string]BreakerState{},
	}
	for p := PriorityLow; p <= PriorityCritical; p++ {
		stats.QueueSizes[p.String()] = len(b.queues[p])
	}
	for _, subs := range b.subs {
		stats.ActiveSubscriptions += len(subs)
	}
	for id, br := range b.breakers {
		stats.Breakers[id] = BreakerState{State: br.state, Failures: br.failures}
	}
	return stats
}

// DeadLetters returns a copy of the dead-letter ring.
func (b *Bus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deadLetters.items()
}

// ClearDeadLetters empties the dead-letter ring.
func (b *Bus) ClearDeadLetters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters.clear()
}

// History returns a copy of the bounded message history.
func (b *Bus) History() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.items()
}

// run is the dispatcher loop.
func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		msg := b.pop()
		if msg == nil {
			select {
			case <-ctx.Done():
				return
			case <-b.notify:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		b.dispatch(ctx, msg)
	}
}

// pop removes the oldest message from the highest non-empty priority queue.
func (b *Bus) pop() *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := PriorityCritical; p >= PriorityLow; p-- {
		if len(b.queues[p]) > 0 {
			msg := b.queues[p][0]
			b.queues[p] = b.queues[p][1:]
			return msg
		}
	}
	return nil
}

// dispatch delivers one message to every matching subscriber. Subscriber
// errors are isolated; they feed the breaker and the dead-letter ring.
func (b *Bus) dispatch(ctx context.Context, msg *Message) {
	now := time.Now()
	if msg.expired(now) {
		b.mu.Lock()
		b.expired++
		b.mu.Unlock()
		slog.Debug("message expired", slog.String("id", msg.ID), slog.String("topic", msg.Topic))
		return
	}

	b.mu.Lock()
	var matched []*Subscription
	for pattern, subs := range b.subs {
		if topicMatches(msg.Topic, pattern) {
			matched = append(matched, subs...)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		b.mu.Lock()
		br, ok := b.breakers[sub.SubscriberID]
		if !ok {
			br = newBreaker()
			b.breakers[sub.SubscriberID] = br
		}
		allowed := br.allow(time.Now())
		if !allowed {
			b.failed++
		}
		b.mu.Unlock()

		if !allowed {
			slog.Warn("circuit breaker open, skipping delivery",
				slog.String("subscriber", sub.SubscriberID),
				slog.String("topic", msg.Topic))
			continue
		}

		err := sub.handler(ctx, msg)

		b.mu.Lock()
		if err != nil {
			br.failure(time.Now())
			b.failed++
			b.deadLetters.push(DeadLetter{
				Message:      msg,
				SubscriberID: sub.SubscriberID,
				Pattern:      sub.Pattern,
				Error:        err.Error(),
				Timestamp:    time.Now(),
			})
			slog.Error("subscriber failed",
				slog.String("subscriber", sub.SubscriberID),
				slog.String("topic", msg.Topic),
				slog.String("error", err.Error()))
		} else {
			br.success()
			b.processed++
		}
		b.mu.Unlock()
	}
}
