package spp

import (
	"testing"
	"time"
)

func TestNotifierUnsubscribeAfterClose(t *testing.T) {
	notifier := NewNotifier()
	sub := notifier.Subscribe(TopicState, TopicDropped)

	notifier.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)

		sub.Unsubscribe()
		notifier.publish(Notification{Topic: TopicState, State: "open"})
		notifier.Close()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe, publish or Close blocked on a closed notifier")
	}

	if _, ok := <-sub.C; ok {
		t.Error("subscription channel is open after Close")
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	notifier := NewNotifier()
	defer notifier.Close()

	sub := notifier.Subscribe(TopicDropped)
	sub.Unsubscribe()

	notifier.publish(Notification{Topic: TopicDropped, Dropped: 3})

	select {
	case note, ok := <-sub.C:
		if ok {
			t.Errorf("notification %+v delivered after Unsubscribe", note)
		}

	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed by Unsubscribe")
	}
}
