package orbit

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Frame Kinds
// ============================================================================

// FrameKind discriminates the JSON frames exchanged over the realtime socket.
type FrameKind string

const (
	KindPrivateMessage FrameKind = "private_message"
	KindGroupMessage   FrameKind = "group_message"
	KindTyping         FrameKind = "typing"
	KindReadStatus     FrameKind = "read_status"
	KindUserOnline     FrameKind = "user_online"
	KindUserOffline    FrameKind = "user_offline"
	KindUserList       FrameKind = "user_list"
	KindNotification   FrameKind = "notification"
	KindError          FrameKind = "error"
	KindPing           FrameKind = "ping"
	KindPong           FrameKind = "pong"
)

// ============================================================================
// Frame
// ============================================================================

// Frame is the wire format for all realtime traffic, client- and
// server-originated alike. Kind-specific payload fields live under Data
// and are decoded per kind by the dispatcher.
type Frame struct {
	Type      FrameKind       `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Content   string          `json:"content,omitempty"`
	From      int64           `json:"from,omitempty"`
	To        int64           `json:"to,omitempty"`
	GroupID   int64           `json:"group_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ParseFrame decodes a raw inbound frame.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}
	return &f, nil
}

// ============================================================================
// Kind-specific payloads (the "data" object)
// ============================================================================

// MessageData accompanies private_message and group_message frames.
type MessageData struct {
	Message *Message `json:"message,omitempty"`
}

// TypingData accompanies typing frames.
type TypingData struct {
	IsTyping bool `json:"is_typing"`
}

// ReadStatusData accompanies read_status frames.
type ReadStatusData struct {
	ReadBy int64 `json:"read_by"`
}

// PresenceData accompanies user_online and user_offline frames.
type PresenceData struct {
	UserID int64 `json:"user_id"`
}

// UserListData accompanies user_list frames; it is a full snapshot that
// replaces any previously known presence state.
type UserListData struct {
	OnlineUsers []int64 `json:"online_users"`
}

// decodeData unmarshals a frame's data object into the kind-specific type.
func decodeData[T any](f *Frame) (*T, error) {
	var payload T
	if len(f.Data) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", f.Type, err)
	}
	return &payload, nil
}

func marshalData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// ============================================================================
// Outbound frame constructors
// ============================================================================

func newPrivateMessageFrame(to int64, content string) *Frame {
	return &Frame{Type: KindPrivateMessage, To: to, Content: content}
}

func newGroupMessageFrame(groupID int64, content string) *Frame {
	return &Frame{Type: KindGroupMessage, GroupID: groupID, Content: content}
}

func newTypingFrame(to, groupID int64, typing bool) *Frame {
	return &Frame{
		Type:    KindTyping,
		To:      to,
		GroupID: groupID,
		Data:    marshalData(TypingData{IsTyping: typing}),
	}
}

func newReadStatusFrame(to int64) *Frame {
	return &Frame{Type: KindReadStatus, To: to}
}

func newPingFrame() *Frame {
	return &Frame{Type: KindPing}
}

func newPongFrame() *Frame {
	return &Frame{Type: KindPong}
}
