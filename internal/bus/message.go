// Package bus is the in-process message bus: topic-routed priority queues
// with request/response correlation, TTL expiry, per-subscriber circuit
// breakers, and a dead-letter ring.
package bus

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message.
type MessageType string

const (
	TypeCommand      MessageType = "command"
	TypeEvent        MessageType = "event"
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
	TypeHeartbeat    MessageType = "heartbeat"
)

// Priority orders dispatch across queues: critical > high > normal > low.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical

	priorityCount = 4
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Message is one bus message.
type Message struct {
	ID            string
	Type          MessageType
	Priority      Priority
	Source        string
	Target        string
	Topic         string
	Payload       map[string]any
	Timestamp     time.Time
	CorrelationID string
	ReplyTo       string
	// TTL of zero means the message never expires.
	TTL time.Duration
}

// expired reports whether the message outlived its TTL at dispatch time.
func (m *Message) expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.Timestamp) > m.TTL
}

func newMessageID() string {
	return uuid.NewString()
}

// topicMatches implements subscription pattern matching: exact topic,
// "prefix*", "*suffix", or the full wildcard "*". No infix wildcards.
func topicMatches(topic, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(topic, pattern[:len(pattern)-1])
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(topic, pattern[1:])
	}
	return topic == pattern
}
