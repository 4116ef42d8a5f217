package spp

import (
	"sync"

	"github.com/cskr/pubsub/v2"

	"github.com/darkhz/btspp/stack"
)

// Topic identifies a kind of notification.
type Topic uint

// The different notification topics.
const (
	TopicState Topic = iota + 1
	TopicAuth
	TopicCongestion
	TopicIllegal
	TopicDropped
)

// Notification describes something a role observed on the link.
// Only the fields relevant to the topic are set.
type Notification struct {
	Topic Topic
	Role  string

	// State is the name of the role state after a transition.
	State string

	// Address is the peer of an authentication attempt.
	Address stack.MacAddress
	Status  stack.Status

	Congested bool

	// Event is the kind of event that caused an illegal transition.
	Event stack.EventKind

	// Dropped is the number of received bytes that did not fit in the pipe.
	Dropped int
}

// Notifier delivers notifications to subscribers.
// Publishing never waits for a subscriber: a notification is lost for a
// subscriber whose channel is full. Once the notifier is closed, publishing
// and unsubscribing do nothing.
type Notifier struct {
	ps *pubsub.PubSub[Topic, Notification]

	mu     sync.RWMutex
	closed bool
}

// Subscription is a subscription to one or more notification topics.
type Subscription struct {
	C <-chan Notification

	unsub func()
}

// NewNotifier returns a new notifier.
func NewNotifier() *Notifier {
	return &Notifier{ps: pubsub.New[Topic, Notification](10)}
}

// Subscribe subscribes to the provided topics.
func (n *Notifier) Subscribe(topics ...Topic) Subscription {
	ch := n.ps.Sub(topics...)

	return Subscription{
		C: ch,
		unsub: func() {
			n.mu.RLock()
			defer n.mu.RUnlock()

			if !n.closed {
				n.ps.Unsub(ch, topics...)
			}
		},
	}
}

// Unsubscribe cancels the subscription.
func (s Subscription) Unsubscribe() {
	if s.unsub != nil {
		s.unsub()
	}
}

// Close shuts the notifier down and closes the channels of all subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	n.closed = true
	n.ps.Shutdown()
}

func (n *Notifier) publish(note Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.closed {
		n.ps.TryPub(note, note.Topic)
	}
}
