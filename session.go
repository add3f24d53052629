package orbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// SessionConfig configures a realtime session.
type SessionConfig struct {
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration // base for linear backoff
	MaxReconnectAttempts int
	TypingTimeout        time.Duration
	Sink                 NotificationSink
	Logger               *log.Logger
}

func (c *SessionConfig) defaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = 3 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.TypingTimeout == 0 {
		c.TypingTimeout = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// ConnectionState is the externally visible connection status.
type ConnectionState struct {
	State             ConnState
	Err               string
	ReconnectAttempts int
	// Failed is set once automatic reconnection is exhausted. The session
	// makes no further attempts on its own; recovery requires a fresh
	// Connect call from the application.
	Failed bool
}

// ErrNotAuthenticated is returned by Connect when the client has no token.
var ErrNotAuthenticated = fmt.Errorf("orbit: not authenticated")

// ============================================================================
// Event handlers
// ============================================================================

type sessionHandlers struct {
	mu         sync.RWMutex
	onMessage  []func(conversationID string, msg Message)
	onTyping   []func(conversationID string, userID int64, typing bool)
	onPresence []func(userID int64, online bool)
	onState    []func(state ConnectionState)
}

func (h *sessionHandlers) emitMessage(conversationID string, msg Message) {
	h.mu.RLock()
	handlers := h.onMessage
	h.mu.RUnlock()
	for _, fn := range handlers {
		safeCall(func() { fn(conversationID, msg) })
	}
}

func (h *sessionHandlers) emitTyping(conversationID string, userID int64, typing bool) {
	h.mu.RLock()
	handlers := h.onTyping
	h.mu.RUnlock()
	for _, fn := range handlers {
		safeCall(func() { fn(conversationID, userID, typing) })
	}
}

func (h *sessionHandlers) emitPresence(userID int64, online bool) {
	h.mu.RLock()
	handlers := h.onPresence
	h.mu.RUnlock()
	for _, fn := range handlers {
		safeCall(func() { fn(userID, online) })
	}
}

func (h *sessionHandlers) emitState(state ConnectionState) {
	h.mu.RLock()
	handlers := h.onState
	h.mu.RUnlock()
	for _, fn := range handlers {
		safeCall(func() { fn(state) })
	}
}

// safeCall swallows panics in user callbacks.
func safeCall(fn func()) {
	defer func() { recover() }()
	fn()
}

// ============================================================================
// Session
// ============================================================================

// Session is the realtime session manager: it owns the single WebSocket to
// the server, queues outbound frames while disconnected, reconnects with
// linear backoff after abnormal closes, and maintains the conversation,
// presence, typing, and unread state driven by inbound frames.
//
// A Session is created per authenticated user via NewSession and torn down
// with Disconnect. All accessors are safe for concurrent use; only the
// dispatcher mutates tracker state.
type Session struct {
	client *Client
	config *SessionConfig
	logger *log.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	connCtx          context.Context
	cancelFn         context.CancelFunc
	state            ConnState
	connErr          string
	attempts         int
	failed           bool
	intentionalClose bool
	reconnectTimer   *time.Timer
	outbox           []*Frame
	selfID           int64

	conversations *conversationStore
	presence      *presenceTracker
	typing        *typingTracker
	unread        *unreadCounter
	sink          NotificationSink

	handlers sessionHandlers
}

// NewSession creates a realtime session bound to the client's credentials
// and base URL. Call Connect to establish the connection.
func NewSession(client *Client, config *SessionConfig) *Session {
	cfg := SessionConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()

	s := &Session{
		client:        client,
		config:        &cfg,
		logger:        cfg.Logger,
		state:         StateDisconnected,
		conversations: newConversationStore(),
		presence:      newPresenceTracker(),
		unread:        newUnreadCounter(),
		sink:          cfg.Sink,
	}
	s.typing = newTypingTracker(cfg.TypingTimeout, func(key typingKey) {
		s.handlers.emitTyping(key.ConversationID, key.UserID, false)
	})
	return s
}

// ── Handler registration ─────────────────────────────────

// OnMessage registers a handler invoked for every message appended to the
// conversation store, inbound and optimistic local sends alike.
func (s *Session) OnMessage(fn func(conversationID string, msg Message)) {
	s.handlers.mu.Lock()
	s.handlers.onMessage = append(s.handlers.onMessage, fn)
	s.handlers.mu.Unlock()
}

// OnTyping registers a handler for typing flag changes, including
// timeout-driven expiry.
func (s *Session) OnTyping(fn func(conversationID string, userID int64, typing bool)) {
	s.handlers.mu.Lock()
	s.handlers.onTyping = append(s.handlers.onTyping, fn)
	s.handlers.mu.Unlock()
}

// OnPresence registers a handler for single-user presence changes. Full
// snapshot replacements (user_list) do not fire per-user events.
func (s *Session) OnPresence(fn func(userID int64, online bool)) {
	s.handlers.mu.Lock()
	s.handlers.onPresence = append(s.handlers.onPresence, fn)
	s.handlers.mu.Unlock()
}

// OnStateChange registers a handler for connection state transitions.
func (s *Session) OnStateChange(fn func(state ConnectionState)) {
	s.handlers.mu.Lock()
	s.handlers.onState = append(s.handlers.onState, fn)
	s.handlers.mu.Unlock()
}

// ── Read accessors ───────────────────────────────────────

// ConnectionState returns the current connection status.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConnectionState{
		State:             s.state,
		Err:               s.connErr,
		ReconnectAttempts: s.attempts,
		Failed:            s.failed,
	}
}

// SelfID returns the authenticated user's id, or 0 if identity has not been
// resolved yet.
func (s *Session) SelfID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Messages returns the buffered messages for a conversation in arrival order.
func (s *Session) Messages(conversationID string) []Message {
	return s.conversations.list(conversationID)
}

// Unread returns the unread message count for a conversation.
func (s *Session) Unread(conversationID string) int {
	return s.unread.count(conversationID)
}

// TypingUsers returns the ids of users currently typing in a conversation.
func (s *Session) TypingUsers(conversationID string) []int64 {
	return s.typing.users(conversationID)
}

// IsOnline reports whether a user is currently online.
func (s *Session) IsOnline(userID int64) bool {
	return s.presence.isOnline(userID)
}

// OnlineUsers returns the ids of all currently-online users.
func (s *Session) OnlineUsers() []int64 {
	return s.presence.list()
}

// ── Connection Supervisor ────────────────────────────────

// Connect establishes the WebSocket connection. It is a no-op when a
// connection attempt is already in flight or established, and returns
// ErrNotAuthenticated when the client carries no token.
//
// On open the reconnect counter is reset, any queued outbound frames are
// flushed in enqueue order before new traffic, and the heartbeat starts.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.client.token == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.failed = false
	s.mu.Unlock()
	s.emitState()

	s.resolveIdentity(ctx)

	conn, _, err := websocket.Dial(ctx, s.wsURL(), nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.connErr = "connection error"
		s.mu.Unlock()
		s.emitState()
		return fmt.Errorf("websocket dial: %w", err)
	}

	// The connection context is detached from the caller's: the connection
	// outlives the Connect call and is torn down via Disconnect or a close.
	connCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	// Disconnect may have run while the dial was in flight. The new socket
	// must not be installed in that case.
	if s.intentionalClose || s.state != StateConnecting {
		s.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return nil
	}
	s.conn = conn
	s.connCtx = connCtx
	s.cancelFn = cancel
	s.state = StateConnected
	s.attempts = 0
	s.failed = false
	s.connErr = ""
	s.flushOutboxLocked()
	s.mu.Unlock()
	s.emitState()

	go s.readLoop(connCtx, conn)
	go s.heartbeatLoop(connCtx)

	return nil
}

// Disconnect closes the connection with a normal-closure code and cancels
// the heartbeat, any pending reconnect timer, and all live typing timers
// before returning. Idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.intentionalClose = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.connErr = ""
	s.attempts = 0
	s.failed = false
	s.mu.Unlock()

	s.typing.stopAll()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	s.emitState()
	return nil
}

// wsURL derives the realtime endpoint from the HTTP base URL.
func (s *Session) wsURL() string {
	u := strings.Replace(s.client.baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws?token=" + s.client.token
}

// resolveIdentity obtains selfID from the identity endpoint, falling back to
// the token claims. Dispatch stays suspended until it succeeds.
func (s *Session) resolveIdentity(ctx context.Context) {
	s.mu.Lock()
	known := s.selfID != 0
	token := s.client.token
	s.mu.Unlock()
	if known {
		return
	}

	if me, err := s.client.Account.Me(ctx); err == nil && me.ID != 0 {
		s.mu.Lock()
		s.selfID = me.ID
		s.mu.Unlock()
		return
	}
	if id, _, err := IdentityFromToken(token); err == nil {
		s.mu.Lock()
		s.selfID = id
		s.mu.Unlock()
		return
	}
	s.logger.Printf("orbit: identity unresolved, inbound dispatch suspended")
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.handleClose(err)
			return
		}
		s.dispatchFrame(data)
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state != StateConnected || s.conn == nil {
				s.mu.Unlock()
				return
			}
			err := s.writeFrameLocked(newPingFrame())
			s.mu.Unlock()
			if err != nil {
				s.logger.Printf("orbit: heartbeat write failed: %v", err)
			}
		}
	}
}

// handleClose reacts to the read loop ending. Normal closures and
// intentional disconnects stop here; anything else drives reconnection.
func (s *Session) handleClose(err error) {
	s.mu.Lock()
	if s.intentionalClose {
		s.mu.Unlock()
		return
	}
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	s.conn = nil
	s.state = StateDisconnected
	normal := websocket.CloseStatus(err) == websocket.StatusNormalClosure
	s.mu.Unlock()

	if normal {
		s.emitState()
		return
	}
	s.scheduleReconnect()
}

// scheduleReconnect arms the next reconnect attempt with linear backoff, or
// enters the terminal failed state once the attempt budget is spent.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.intentionalClose {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.config.MaxReconnectAttempts {
		s.failed = true
		s.connErr = "connection lost, please reload the application"
		s.mu.Unlock()
		s.emitState()
		return
	}
	s.attempts++
	n := s.attempts
	delay := s.config.ReconnectInterval * time.Duration(n)
	s.connErr = fmt.Sprintf("reconnecting (%d/%d)", n, s.config.MaxReconnectAttempts)
	s.reconnectTimer = time.AfterFunc(delay, s.attemptReconnect)
	s.mu.Unlock()
	s.emitState()
}

func (s *Session) attemptReconnect() {
	s.mu.Lock()
	s.reconnectTimer = nil
	if s.intentionalClose {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.Connect(context.Background()); err != nil {
		s.logger.Printf("orbit: reconnect failed: %v", err)
		s.scheduleReconnect()
	}
}

func (s *Session) emitState() {
	s.handlers.emitState(s.ConnectionState())
}

// ── Outbound Queue ───────────────────────────────────────

// send transmits a frame when the connection is open, or appends it to the
// outbound queue and returns false when it is not. Queued frames are flushed
// in enqueue order on the next successful connect.
func (s *Session) send(f *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	if s.state != StateConnected || s.conn == nil {
		s.outbox = append(s.outbox, f)
		return false
	}
	if err := s.writeFrameLocked(f); err != nil {
		s.logger.Printf("orbit: send failed, queueing frame: %v", err)
		s.outbox = append(s.outbox, f)
		return false
	}
	return true
}

// flushOutboxLocked drains the queue FIFO. Called with the session lock held
// immediately after connect, so no new traffic can interleave with the
// queued frames.
func (s *Session) flushOutboxLocked() {
	for i, f := range s.outbox {
		if err := s.writeFrameLocked(f); err != nil {
			s.logger.Printf("orbit: outbox flush stopped at %d/%d: %v", i, len(s.outbox), err)
			s.outbox = s.outbox[i:]
			return
		}
	}
	s.outbox = nil
}

func (s *Session) writeFrameLocked(f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.conn.Write(s.connCtx, websocket.MessageText, data)
}

// queueLen reports the outbound queue depth.
func (s *Session) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

// ── Send operations ──────────────────────────────────────

// SendPrivateMessage sends a private message over the realtime connection.
// The message is appended optimistically to the local conversation store.
// A false return means the frame was queued for the next reconnect, not
// dropped; callers may fall back to Messages.SendPrivate over HTTP.
func (s *Session) SendPrivateMessage(to int64, content string) bool {
	now := time.Now().UTC()
	s.appendOwnMessage(&Message{
		ID:           "local-" + uuid.NewString(),
		Content:      content,
		RecipientID:  to,
		Timestamp:    now,
		IsOwnMessage: true,
	})
	f := newPrivateMessageFrame(to, content)
	f.Timestamp = now
	return s.send(f)
}

// SendGroupMessage sends a message to a group conversation.
func (s *Session) SendGroupMessage(groupID int64, content string) bool {
	now := time.Now().UTC()
	s.appendOwnMessage(&Message{
		ID:           "local-" + uuid.NewString(),
		Content:      content,
		GroupID:      groupID,
		Timestamp:    now,
		IsOwnMessage: true,
	})
	f := newGroupMessageFrame(groupID, content)
	f.Timestamp = now
	return s.send(f)
}

// SendTyping toggles the typing indicator for the private conversation with
// the given user.
func (s *Session) SendTyping(to int64, typing bool) bool {
	return s.send(newTypingFrame(to, 0, typing))
}

// SendGroupTyping toggles the typing indicator in a group conversation.
func (s *Session) SendGroupTyping(groupID int64, typing bool) bool {
	return s.send(newTypingFrame(0, groupID, typing))
}

// MarkRead tells the peer that their messages have been read and clears the
// local unread count for that private conversation.
func (s *Session) MarkRead(otherUserID int64) bool {
	s.mu.Lock()
	selfID := s.selfID
	s.mu.Unlock()
	if selfID != 0 {
		s.unread.clear(PrivateConversationID(selfID, otherUserID))
	}
	return s.send(newReadStatusFrame(otherUserID))
}

// MarkConversationRead clears the local unread count for a conversation.
func (s *Session) MarkConversationRead(conversationID string) {
	s.unread.clear(conversationID)
}

// appendOwnMessage records an optimistic local send. Skipped while identity
// is unresolved since conversation ids require selfID.
func (s *Session) appendOwnMessage(msg *Message) {
	s.mu.Lock()
	selfID := s.selfID
	s.mu.Unlock()
	if selfID == 0 {
		return
	}
	msg.SenderID = selfID

	var convID string
	if msg.GroupID != 0 {
		convID = GroupConversationID(msg.GroupID)
	} else {
		convID = PrivateConversationID(selfID, msg.RecipientID)
	}
	s.conversations.append(convID, msg)
	s.handlers.emitMessage(convID, *msg)
}
