package orbit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDispatchSession builds a session with a resolved identity and no live
// connection, enough to drive dispatchFrame directly.
func newDispatchSession(t *testing.T, selfID int64, cfg *SessionConfig) *Session {
	t.Helper()
	s := NewSession(NewClient("test-token"), cfg)
	s.mu.Lock()
	s.selfID = selfID
	s.mu.Unlock()
	return s
}

func TestDispatchPrivateMessage(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	var gotConv string
	var gotMsg Message
	s.OnMessage(func(convID string, msg Message) {
		gotConv = convID
		gotMsg = msg
	})

	s.dispatchFrame([]byte(`{
		"type": "private_message",
		"from": 2, "to": 1,
		"content": "hello",
		"message_id": "m-1",
		"timestamp": "2026-08-30T10:00:00Z"
	}`))

	assert.Equal(t, "private_1_2", gotConv)
	assert.Equal(t, "hello", gotMsg.Content)
	assert.Equal(t, int64(2), gotMsg.SenderID)
	assert.False(t, gotMsg.IsOwnMessage)

	msgs := s.Messages("private_1_2")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].ID)
	assert.Equal(t, 1, s.Unread("private_1_2"), "peer message increments unread")
}

func TestDispatchOwnEchoDoesNotIncrementUnread(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{"type":"private_message","from":1,"to":2,"content":"mine"}`))

	msgs := s.Messages("private_1_2")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsOwnMessage)
	assert.Equal(t, 0, s.Unread("private_1_2"))
}

func TestDispatchGroupMessage(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{"type":"group_message","from":3,"group_id":9,"content":"hi all"}`))

	msgs := s.Messages("group_9")
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(9), msgs[0].GroupID)
	assert.Equal(t, 1, s.Unread("group_9"))
}

func TestDispatchPrefersEmbeddedMessageObject(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{
		"type": "private_message",
		"from": 2, "to": 1,
		"content": "stale",
		"data": {"message": {"id": "srv-42", "content": "canonical", "timestamp": "2026-08-30T10:05:00Z"}}
	}`))

	msgs := s.Messages("private_1_2")
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-42", msgs[0].ID)
	assert.Equal(t, "canonical", msgs[0].Content)
}

func TestDispatchSuspendedUntilIdentityResolved(t *testing.T) {
	s := newDispatchSession(t, 0, nil)

	s.dispatchFrame([]byte(`{"type":"private_message","from":2,"to":1,"content":"early"}`))
	s.dispatchFrame([]byte(`{"type":"ping"}`))

	assert.Empty(t, s.Messages("private_1_2"))
	assert.Equal(t, 0, s.queueLen(), "no pong while identity unresolved")
}

func TestDispatchMalformedAndUnknownFrames(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	// None of these may panic or disturb state.
	s.dispatchFrame([]byte(`not json`))
	s.dispatchFrame([]byte(`{"content":"no type"}`))
	s.dispatchFrame([]byte(`{"type":"hologram"}`))

	assert.Empty(t, s.Messages("private_1_2"))
}

func TestDispatchReadStatusStampsOwnMessages(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.conversations.append("private_1_2", &Message{ID: "a", IsOwnMessage: true})
	s.conversations.append("private_1_2", &Message{ID: "b", IsOwnMessage: false})
	s.conversations.append("private_1_2", &Message{ID: "c", IsOwnMessage: true})

	s.dispatchFrame([]byte(`{"type":"read_status","from":2,"to":1,"timestamp":"2026-08-30T11:00:00Z"}`))

	msgs := s.Messages("private_1_2")
	require.NotNil(t, msgs[0].ReadAt)
	assert.Nil(t, msgs[1].ReadAt)
	require.NotNil(t, msgs[2].ReadAt)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC), msgs[0].ReadAt.UTC())
}

func TestDispatchReadStatusReadByPayload(t *testing.T) {
	s := newDispatchSession(t, 1, nil)
	s.conversations.append("private_1_2", &Message{ID: "a", IsOwnMessage: true})

	// The reader id may arrive in the data object instead of the from field.
	s.dispatchFrame([]byte(`{"type":"read_status","to":1,"data":{"read_by":2}}`))
	require.NotNil(t, s.Messages("private_1_2")[0].ReadAt)
}

func TestDispatchReadStatusReadBySelfIsNoop(t *testing.T) {
	s := newDispatchSession(t, 1, nil)
	s.conversations.append("private_1_2", &Message{ID: "a", IsOwnMessage: true})

	s.dispatchFrame([]byte(`{"type":"read_status","from":2,"to":2,"data":{"read_by":1}}`))
	assert.Nil(t, s.Messages("private_1_2")[0].ReadAt)
}

func TestDispatchReadStatusFromSelfIsNoop(t *testing.T) {
	s := newDispatchSession(t, 1, nil)
	s.conversations.append("private_1_2", &Message{ID: "a", IsOwnMessage: true})

	s.dispatchFrame([]byte(`{"type":"read_status","from":1,"to":2}`))

	assert.Nil(t, s.Messages("private_1_2")[0].ReadAt)
}

func TestDispatchTypingLifecycle(t *testing.T) {
	s := newDispatchSession(t, 1, &SessionConfig{TypingTimeout: 40 * time.Millisecond})

	type typingEvent struct {
		conv   string
		userID int64
		typing bool
	}
	events := make(chan typingEvent, 8)
	s.OnTyping(func(convID string, userID int64, typing bool) {
		events <- typingEvent{convID, userID, typing}
	})

	s.dispatchFrame([]byte(`{"type":"typing","from":2,"to":1,"data":{"is_typing":true}}`))
	assert.ElementsMatch(t, []int64{2}, s.TypingUsers("private_1_2"))
	assert.Equal(t, typingEvent{"private_1_2", 2, true}, <-events)

	// No explicit stop: the indicator must expire on its own.
	require.Eventually(t, func() bool {
		return len(s.TypingUsers("private_1_2")) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, typingEvent{"private_1_2", 2, false}, <-events)
}

func TestDispatchTypingExplicitStop(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{"type":"typing","from":2,"group_id":9,"data":{"is_typing":true}}`))
	assert.ElementsMatch(t, []int64{2}, s.TypingUsers("group_9"))

	s.dispatchFrame([]byte(`{"type":"typing","from":2,"group_id":9,"data":{"is_typing":false}}`))
	assert.Empty(t, s.TypingUsers("group_9"))
}

func TestDispatchTypingFromSelfIgnored(t *testing.T) {
	s := newDispatchSession(t, 1, nil)
	s.dispatchFrame([]byte(`{"type":"typing","from":1,"to":2,"data":{"is_typing":true}}`))
	assert.Empty(t, s.TypingUsers("private_1_2"))
}

func TestDispatchPresenceEvents(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{"type":"user_online","data":{"user_id":5}}`))
	assert.True(t, s.IsOnline(5))

	s.dispatchFrame([]byte(`{"type":"user_offline","data":{"user_id":5}}`))
	assert.False(t, s.IsOnline(5))
}

func TestDispatchUserListReplacesSnapshot(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{"type":"user_online","data":{"user_id":99}}`))
	s.dispatchFrame([]byte(`{"type":"user_list","data":{"online_users":[1,2,3]}}`))
	assert.ElementsMatch(t, []int64{1, 2, 3}, s.OnlineUsers())
	assert.False(t, s.IsOnline(99), "snapshot replaces prior state")

	s.dispatchFrame([]byte(`{"type":"user_offline","data":{"user_id":2}}`))
	assert.ElementsMatch(t, []int64{1, 3}, s.OnlineUsers())
}

func TestDispatchNotificationToSink(t *testing.T) {
	sink := NewChannelSink(4)
	s := newDispatchSession(t, 1, &SessionConfig{Sink: sink})

	s.dispatchFrame([]byte(`{
		"type": "notification",
		"data": {"id": 7, "type": "friend_request", "title": "New request", "message": "User 3 wants to connect", "from_user": 3}
	}`))

	select {
	case n := <-sink.C:
		assert.Equal(t, int64(7), n.ID)
		assert.Equal(t, "friend_request", n.Type)
		assert.Equal(t, int64(3), n.FromUser)
	default:
		t.Fatal("notification never reached the sink")
	}
}

func TestDispatchNotificationWithoutSinkIsDropped(t *testing.T) {
	s := newDispatchSession(t, 1, nil)
	assert.NotPanics(t, func() {
		s.dispatchFrame([]byte(`{"type":"notification","data":{"id":1}}`))
	})
}

func TestDispatchErrorFrameSurfacesInState(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	states := make(chan ConnectionState, 1)
	s.OnStateChange(func(state ConnectionState) { states <- state })

	s.dispatchFrame([]byte(`{"type":"error","content":"rate limited"}`))

	state := <-states
	assert.Equal(t, "rate limited", state.Err)
	assert.Equal(t, "rate limited", s.ConnectionState().Err)
}

func TestDispatchPingQueuesPongWhenDisconnected(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	s.dispatchFrame([]byte(`{"type":"ping"}`))

	// Not connected, so the pong lands in the outbox.
	assert.Equal(t, 1, s.queueLen())
}

func TestDispatchSurvivesPanickingHandler(t *testing.T) {
	s := newDispatchSession(t, 1, nil)

	var calls int
	s.OnMessage(func(string, Message) { panic("handler bug") })
	s.OnMessage(func(string, Message) { calls++ })

	for i := 0; i < 3; i++ {
		s.dispatchFrame([]byte(fmt.Sprintf(`{"type":"private_message","from":2,"to":1,"content":"msg %d"}`, i)))
	}

	assert.Equal(t, 3, calls, "a panicking handler must not starve the others")
	assert.Len(t, s.Messages("private_1_2"), 3)
}
