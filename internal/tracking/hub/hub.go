// Package hub keeps the registry of live sessions and routes frames to the
// members of each topic.
//
// Membership changes take the write lock; Publish collects the member list
// under the read lock and enqueues outside of it. Subscriber.Send must never
// block: a slow or closed subscriber returns an error and gets pruned.
package hub

import (
	"errors"
	"sort"
	"sync"
	"time"

	"fastfare/internal/shared/logger"
	"fastfare/internal/tracking/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionPruned   = errors.New("session pruned")
)

// Subscriber is the outbound side of one connection.
type Subscriber interface {
	ID() string
	// Send enqueues msg without blocking.
	Send(msg []byte) error
	// Close asks the connection to shut down. It must be safe to call twice.
	Close()
}

type member struct {
	sub     Subscriber
	session domain.Session
	topics  map[domain.Topic]struct{}
	// pruned is set once a delivery failed; the session only waits for its
	// connection to report the close.
	pruned bool
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*member
	topics   map[domain.Topic]map[string]Subscriber

	log     *logger.Logger
	now     func() time.Time
	onPrune func(sessionID string, err error)
}

type Option func(*Hub)

// WithPruneHook is called, outside the lock, for every subscriber dropped
// after a failed delivery.
func WithPruneHook(fn func(sessionID string, err error)) Option {
	return func(h *Hub) { h.onPrune = fn }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func New(log *logger.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{
		sessions: make(map[string]*member),
		topics:   make(map[domain.Topic]map[string]Subscriber),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open registers a new session for sub. A known role moves the session
// straight to ROLE_DECLARED.
func (h *Hub) Open(sub Subscriber, role domain.Role, driverID string) domain.Session {
	m := &member{
		sub: sub,
		session: domain.Session{
			ConnectionID:     sub.ID(),
			Role:             role,
			DeclaredDriverID: driverID,
			State:            domain.SessionConnected,
			OpenedAt:         h.now(),
		},
		topics: make(map[domain.Topic]struct{}),
	}
	if role != domain.RoleUnknown {
		m.session.State = domain.SessionRoleDeclared
	}

	h.mu.Lock()
	h.sessions[sub.ID()] = m
	s := m.snapshot()
	h.mu.Unlock()

	h.log.Info(logger.Entry{
		Action:   "session_opened",
		Message:  sub.ID(),
		DriverID: driverID,
		Additional: map[string]any{
			"role": string(role),
		},
	})
	return s
}

// Declare records the role and driver identity of an open session.
func (h *Hub) Declare(sessionID string, role domain.Role, driverID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if role != domain.RoleUnknown {
		m.session.Role = role
	}
	if driverID != "" {
		m.session.DeclaredDriverID = driverID
	}
	if m.session.State == domain.SessionConnected && m.session.Role != domain.RoleUnknown {
		m.session.State = domain.SessionRoleDeclared
	}
	return nil
}

// Join adds the session to topic. When the membership is new and seed is not
// nil, the frame returned by seed is enqueued to the session before the lock
// is released, so no later Publish on any topic can overtake it.
// Joining a topic twice is a no-op and returns false.
func (h *Hub) Join(sessionID string, topic domain.Topic, seed func() []byte) (bool, error) {
	if !topic.Valid() {
		return false, domain.ErrInvalidTopic
	}

	h.mu.Lock()
	m, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return false, ErrSessionNotFound
	}
	if m.pruned {
		h.mu.Unlock()
		return false, ErrSessionPruned
	}
	if _, already := m.topics[topic]; already {
		h.mu.Unlock()
		return false, nil
	}

	h.addLocked(m, topic)

	if seed != nil {
		if err := m.sub.Send(seed()); err != nil {
			m.pruned = true
			h.detachLocked(m)
			h.mu.Unlock()
			h.prune(m.sub, err)
			return false, err
		}
	}
	h.mu.Unlock()

	h.log.Debug(logger.Entry{
		Action:  "topic_joined",
		Message: sessionID,
		Additional: map[string]any{
			"topic": topic.String(),
		},
	})
	return true, nil
}

func (h *Hub) Leave(sessionID string, topic domain.Topic) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if _, joined := m.topics[topic]; !joined {
		return nil
	}
	delete(m.topics, topic)
	h.removeMemberLocked(topic, sessionID)

	if len(m.topics) == 0 && m.session.State == domain.SessionInTopics {
		m.session.State = domain.SessionConnected
		if m.session.Role != domain.RoleUnknown {
			m.session.State = domain.SessionRoleDeclared
		}
	}
	return nil
}

// Publish delivers msg to every current member of topic and returns the
// number of successful enqueues. Delivery is at most once.
func (h *Hub) Publish(topic domain.Topic, msg []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	return h.deliver(subs, msg)
}

// Broadcast delivers msg to every open session regardless of topics.
// Pruned sessions are skipped.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.sessions))
	for _, m := range h.sessions {
		if !m.pruned {
			subs = append(subs, m.sub)
		}
	}
	h.mu.RUnlock()

	return h.deliver(subs, msg)
}

func (h *Hub) deliver(subs []Subscriber, msg []byte) int {
	delivered := 0
	for _, s := range subs {
		if err := s.Send(msg); err != nil {
			if h.markPruned(s) {
				h.prune(s, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Close removes the session from every topic and from the registry. The
// returned session carries the state it had at close; ok is false when the
// session was already gone.
func (h *Hub) Close(sessionID string) (domain.Session, bool) {
	h.mu.Lock()
	m, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return domain.Session{}, false
	}
	s := m.snapshot()
	h.detachLocked(m)
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	s.State = domain.SessionClosed
	h.log.Info(logger.Entry{
		Action:   "session_closed",
		Message:  sessionID,
		DriverID: s.DeclaredDriverID,
		Additional: map[string]any{
			"topics": len(s.Topics),
		},
	})
	return s, true
}

func (h *Hub) Session(sessionID string) (domain.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m, ok := h.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return m.snapshot(), true
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Members returns the number of sessions joined to topic.
func (h *Hub) Members(topic domain.Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) addLocked(m *member, topic domain.Topic) {
	m.topics[topic] = struct{}{}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]Subscriber)
		h.topics[topic] = subs
	}
	subs[m.session.ConnectionID] = m.sub
	m.session.State = domain.SessionInTopics
}

// markPruned detaches the session behind s and reports whether this call
// was the one to prune it.
func (h *Hub) markPruned(s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[s.ID()]
	if !ok || m.sub != s || m.pruned {
		return false
	}
	m.pruned = true
	h.detachLocked(m)
	return true
}

// detachLocked drops every membership of m but keeps it registered until
// the connection reports its close.
func (h *Hub) detachLocked(m *member) {
	for t := range m.topics {
		h.removeMemberLocked(t, m.session.ConnectionID)
	}
	m.topics = make(map[domain.Topic]struct{})
}

func (h *Hub) removeMemberLocked(topic domain.Topic, sessionID string) {
	subs := h.topics[topic]
	delete(subs, sessionID)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) prune(s Subscriber, err error) {
	s.Close()
	h.log.Warn(logger.Entry{
		Action:  "subscriber_pruned",
		Message: s.ID(),
		Error:   &logger.ErrObj{Msg: err.Error()},
	})
	if h.onPrune != nil {
		h.onPrune(s.ID(), err)
	}
}

func (m *member) snapshot() domain.Session {
	s := m.session
	s.Topics = make([]domain.Topic, 0, len(m.topics))
	for t := range m.topics {
		s.Topics = append(s.Topics, t)
	}
	sort.Slice(s.Topics, func(i, j int) bool { return s.Topics[i].String() < s.Topics[j].String() })
	return s
}
