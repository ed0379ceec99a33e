package server

import (
	"sync"
)

const defaultSubscriberBuffer = 32

// RealtimeMessage is one event frame delivered to a connected client.
type RealtimeMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RealtimeHub tracks connected clients by user and by joined room and fans
// events out to them. Sends never block; a full subscriber buffer drops the
// message for that subscriber.
type RealtimeHub struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	byUser      map[string]map[int64]*realtimeSubscriber
	rooms       map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	closed      bool
}

type realtimeSubscriber struct {
	id     int64
	userID string
	rooms  map[string]struct{}
	stream chan RealtimeMessage
}

// RealtimeSubscription is a client's handle on the hub.
type RealtimeSubscription struct {
	hub        *RealtimeHub
	subscriber *realtimeSubscriber
	once       sync.Once
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{
		subscribers: make(map[int64]*realtimeSubscriber),
		byUser:      make(map[string]map[int64]*realtimeSubscriber),
		rooms:       make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  defaultSubscriberBuffer,
	}
}

// Subscribe registers a client for userID. The returned subscription's
// Messages channel is closed on Unsubscribe or hub Close.
func (h *RealtimeHub) Subscribe(userID string) *RealtimeSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	subscriber := &realtimeSubscriber{
		id:     h.nextID,
		userID: userID,
		rooms:  make(map[string]struct{}),
		stream: make(chan RealtimeMessage, h.bufferSize),
	}
	subscription := &RealtimeSubscription{hub: h, subscriber: subscriber}
	if h.closed {
		close(subscriber.stream)
		return subscription
	}
	h.subscribers[subscriber.id] = subscriber
	if userID != "" {
		addMember(h.byUser, userID, subscriber)
	}
	return subscription
}

// Messages streams events addressed to this subscription.
func (s *RealtimeSubscription) Messages() <-chan RealtimeMessage {
	return s.subscriber.stream
}

// Join adds the subscription to room.
func (s *RealtimeSubscription) Join(room string) {
	if room == "" {
		return
	}
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s.subscriber.id]; !ok {
		return
	}
	s.subscriber.rooms[room] = struct{}{}
	addMember(h.rooms, room, s.subscriber)
}

// Leave removes the subscription from room.
func (s *RealtimeSubscription) Leave(room string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(s.subscriber.rooms, room)
	removeMember(h.rooms, room, s.subscriber.id)
}

// Send delivers a message to this subscription only.
func (s *RealtimeSubscription) Send(message RealtimeMessage) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.subscribers[s.subscriber.id]; !ok {
		return
	}
	deliver(s.subscriber, message)
}

// Unsubscribe detaches the subscription from every room and closes its stream.
func (s *RealtimeSubscription) Unsubscribe() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[s.subscriber.id]; !ok {
			return
		}
		h.detach(s.subscriber)
		close(s.subscriber.stream)
	})
}

// PublishToUser sends event to every connection of userID.
func (h *RealtimeHub) PublishToUser(userID, event string, payload any) {
	if userID == "" || event == "" {
		return
	}
	h.publish(h.byUser, userID, RealtimeMessage{Event: event, Data: payload})
}

// PublishToRoom sends event to every connection that joined room.
func (h *RealtimeHub) PublishToRoom(room, event string, payload any) {
	if room == "" || event == "" {
		return
	}
	h.publish(h.rooms, room, RealtimeMessage{Event: event, Data: payload})
}

// Broadcast sends event to every connection.
func (h *RealtimeHub) Broadcast(event string, payload any) {
	if event == "" {
		return
	}
	message := RealtimeMessage{Event: event, Data: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subscriber := range h.subscribers {
		deliver(subscriber, message)
	}
}

// Connections reports the number of live subscriptions.
func (h *RealtimeHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes every subscriber stream. Later subscriptions start closed.
func (h *RealtimeHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subscriber := range h.subscribers {
		h.detach(subscriber)
		close(subscriber.stream)
	}
}

func (h *RealtimeHub) publish(index map[string]map[int64]*realtimeSubscriber, key string, message RealtimeMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subscriber := range index[key] {
		deliver(subscriber, message)
	}
}

// detach must be called with h.mu held.
func (h *RealtimeHub) detach(subscriber *realtimeSubscriber) {
	delete(h.subscribers, subscriber.id)
	if subscriber.userID != "" {
		removeMember(h.byUser, subscriber.userID, subscriber.id)
	}
	for room := range subscriber.rooms {
		removeMember(h.rooms, room, subscriber.id)
	}
}

func deliver(subscriber *realtimeSubscriber, message RealtimeMessage) {
	select {
	case subscriber.stream <- message:
	default:
	}
}

func addMember(index map[string]map[int64]*realtimeSubscriber, key string, subscriber *realtimeSubscriber) {
	members, ok := index[key]
	if !ok {
		members = make(map[int64]*realtimeSubscriber)
		index[key] = members
	}
	members[subscriber.id] = subscriber
}

func removeMember(index map[string]map[int64]*realtimeSubscriber, key string, subscriberID int64) {
	members := index[key]
	if members == nil {
		return
	}
	delete(members, subscriberID)
	if len(members) == 0 {
		delete(index, key)
	}
}
