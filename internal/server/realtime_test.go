package server

import (
	"testing"
	"time"
)

func receive(t *testing.T, subscription *RealtimeSubscription) RealtimeMessage {
	t.Helper()
	select {
	case message, ok := <-subscription.Messages():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return message
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for realtime message")
	}
	return RealtimeMessage{}
}

func expectSilence(t *testing.T, subscription *RealtimeSubscription) {
	t.Helper()
	select {
	case message, ok := <-subscription.Messages():
		if ok {
			t.Fatalf("unexpected realtime message %q", message.Event)
		}
	default:
	}
}

func TestRealtimeHubRoutesByUserRoomAndBroadcast(t *testing.T) {
	hub := NewRealtimeHub()
	defer hub.Close()

	alice := hub.Subscribe("alice")
	aliceSecondTab := hub.Subscribe("alice")
	bob := hub.Subscribe("bob")

	hub.PublishToUser("alice", "notification", "for alice")
	if receive(t, alice).Data != "for alice" || receive(t, aliceSecondTab).Data != "for alice" {
		t.Fatalf("expected both alice connections to receive the notification")
	}
	expectSilence(t, bob)

	bob.Join("article:1")
	hub.PublishToRoom("article:1", "commentCreated", 1)
	if message := receive(t, bob); message.Event != "commentCreated" {
		t.Fatalf("unexpected room event %q", message.Event)
	}
	expectSilence(t, alice)

	bob.Leave("article:1")
	hub.PublishToRoom("article:1", "commentCreated", 2)
	expectSilence(t, bob)

	hub.Broadcast("articleCreated", nil)
	for _, subscription := range []*RealtimeSubscription{alice, aliceSecondTab, bob} {
		if message := receive(t, subscription); message.Event != "articleCreated" {
			t.Fatalf("unexpected broadcast event %q", message.Event)
		}
	}
	if hub.Connections() != 3 {
		t.Fatalf("expected 3 connections, got %d", hub.Connections())
	}
}

func TestRealtimeHubUnsubscribeDetaches(t *testing.T) {
	hub := NewRealtimeHub()
	defer hub.Close()

	subscription := hub.Subscribe("alice")
	subscription.Join("article:1")
	subscription.Unsubscribe()
	subscription.Unsubscribe()

	if _, ok := <-subscription.Messages(); ok {
		t.Fatalf("expected stream to be closed")
	}
	hub.PublishToUser("alice", "notification", nil)
	hub.PublishToRoom("article:1", "commentCreated", nil)
	if hub.Connections() != 0 {
		t.Fatalf("expected no connections, got %d", hub.Connections())
	}
	if len(hub.rooms) != 0 || len(hub.byUser) != 0 {
		t.Fatalf("expected indexes to be empty")
	}
}

func TestRealtimeHubDropsWhenBufferFull(t *testing.T) {
	hub := NewRealtimeHub()
	defer hub.Close()

	subscription := hub.Subscribe("alice")
	for i := 0; i < defaultSubscriberBuffer*2; i++ {
		hub.PublishToUser("alice", "notification", i)
	}
	if len(subscription.Messages()) != defaultSubscriberBuffer {
		t.Fatalf("expected buffer to hold %d messages, got %d", defaultSubscriberBuffer, len(subscription.Messages()))
	}
	if first := receive(t, subscription); first.Data != 0 {
		t.Fatalf("expected oldest message first, got %v", first.Data)
	}
}

func TestRealtimeHubCloseEndsStreams(t *testing.T) {
	hub := NewRealtimeHub()
	subscription := hub.Subscribe("alice")

	hub.Close()
	hub.Close()
	if _, ok := <-subscription.Messages(); ok {
		t.Fatalf("expected stream to be closed")
	}
	subscription.Unsubscribe()

	late := hub.Subscribe("bob")
	if _, ok := <-late.Messages(); ok {
		t.Fatalf("expected subscription after close to start closed")
	}
	late.Join("article:1")
	late.Send(RealtimeMessage{Event: "pong"})
}
