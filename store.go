package orbit

import (
	"sync"
	"time"
)

// ============================================================================
// Message
// ============================================================================

// Message is a single chat message held by the conversation store. Messages
// are append-only; the only mutation after append is the ReadAt stamp applied
// when the peer acknowledges reading the conversation.
type Message struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	SenderID     int64      `json:"sender_id"`
	RecipientID  int64      `json:"recipient_id,omitempty"`
	GroupID      int64      `json:"group_id,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	IsOwnMessage bool       `json:"is_own_message"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// ============================================================================
// Conversation Store
// ============================================================================

// conversationStore is a goroutine-safe keyed buffer of messages per
// conversation. Writes come exclusively from the dispatcher and the
// optimistic local-send path.
type conversationStore struct {
	mu       sync.RWMutex
	messages map[string][]*Message
}

func newConversationStore() *conversationStore {
	return &conversationStore{messages: make(map[string][]*Message)}
}

func (s *conversationStore) append(conversationID string, msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
}

// list returns value copies so callers can never mutate stored messages.
func (s *conversationStore) list(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

// markPeerRead stamps every own message in the conversation with the given
// read time. The peer's read acknowledgment covers the whole conversation,
// not a message range.
func (s *conversationStore) markPeerRead(conversationID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[conversationID] {
		if m.IsOwnMessage {
			t := at
			m.ReadAt = &t
		}
	}
}

// ============================================================================
// Presence Tracker
// ============================================================================

// presenceTracker holds the set of currently-online user ids.
type presenceTracker struct {
	mu     sync.RWMutex
	online map[int64]struct{}
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{online: make(map[int64]struct{})}
}

func (p *presenceTracker) setOnline(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = struct{}{}
}

func (p *presenceTracker) setOffline(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
}

// replaceAll installs a full snapshot, discarding prior state. Sent by the
// server on every (re)connect.
func (p *presenceTracker) replaceAll(userIDs []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		p.online[id] = struct{}{}
	}
}

func (p *presenceTracker) isOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

func (p *presenceTracker) list() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int64, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	return out
}

// ============================================================================
// Typing Tracker
// ============================================================================

// typingKey identifies one user typing in one conversation. A struct key
// avoids the collision bugs of separator-joined string keys.
type typingKey struct {
	ConversationID string
	UserID         int64
}

// typingTracker holds ephemeral per-conversation typing flags. Each entry
// owns exactly one expiry timer; restarting an entry cancels the previous
// timer before scheduling a new one, and the expiry path acts only for the
// timer currently installed for its key, so a restart always supersedes an
// older pending expiry.
type typingTracker struct {
	mu       sync.Mutex
	timers   map[typingKey]*time.Timer
	ttl      time.Duration
	onExpire func(key typingKey)
}

func newTypingTracker(ttl time.Duration, onExpire func(key typingKey)) *typingTracker {
	return &typingTracker{
		timers:   make(map[typingKey]*time.Timer),
		ttl:      ttl,
		onExpire: onExpire,
	}
}

func (t *typingTracker) start(key typingKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		// Stop returns false once the timer has fired; the fired callback is
		// then already waiting on the lock and must be recognizable as stale.
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.ttl, func() { t.expire(key, timer) })
	t.timers[key] = timer
}

func (t *typingTracker) stop(key typingKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// expire runs as a fired timer's callback. It only acts if the entry still
// belongs to that exact timer; a restart installs a new timer for the key, so
// an older callback that lost the race must leave the fresh entry alone.
func (t *typingTracker) expire(key typingKey, timer *time.Timer) {
	t.mu.Lock()
	if t.timers[key] != timer {
		// Stopped or restarted between the timer firing and this call.
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(key)
	}
}

func (t *typingTracker) users(conversationID string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int64
	for key := range t.timers {
		if key.ConversationID == conversationID {
			out = append(out, key.UserID)
		}
	}
	return out
}

// stopAll cancels every live timer. Called on session teardown so no expiry
// callback fires against a torn-down session.
func (t *typingTracker) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

// ============================================================================
// Unread Counter
// ============================================================================

// unreadCounter maps conversation ids to unread message counts. Counts are
// incremented by the dispatcher for inbound non-self messages and cleared
// only by the explicit mark-as-read paths.
type unreadCounter struct {
	mu     sync.RWMutex
	counts map[string]int
}

func newUnreadCounter() *unreadCounter {
	return &unreadCounter{counts: make(map[string]int)}
}

func (u *unreadCounter) increment(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[conversationID]++
}

func (u *unreadCounter) clear(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.counts, conversationID)
}

func (u *unreadCounter) count(conversationID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[conversationID]
}
