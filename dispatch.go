package orbit

import "time"

// ============================================================================
// Inbound Dispatcher
// ============================================================================

// dispatchFrame parses one inbound frame and routes it to exactly one
// handler. Malformed frames and unknown kinds are logged and discarded;
// neither may take down the read loop or the connection.
//
// Dispatch is suspended until the session's identity is resolved, since
// conversation-id derivation and own-message detection both need selfID.
func (s *Session) dispatchFrame(raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		s.logger.Printf("orbit: discarding inbound frame: %v", err)
		return
	}

	s.mu.Lock()
	selfID := s.selfID
	s.mu.Unlock()
	if selfID == 0 {
		s.logger.Printf("orbit: identity unresolved, dropping %s frame", f.Type)
		return
	}

	switch f.Type {
	case KindPrivateMessage:
		s.handlePrivateMessage(f, selfID)
	case KindGroupMessage:
		s.handleGroupMessage(f, selfID)
	case KindTyping:
		s.handleTyping(f, selfID)
	case KindReadStatus:
		s.handleReadStatus(f, selfID)
	case KindUserOnline:
		s.handlePresence(f, true)
	case KindUserOffline:
		s.handlePresence(f, false)
	case KindUserList:
		s.handleUserList(f)
	case KindNotification:
		s.handleNotification(f)
	case KindError:
		s.mu.Lock()
		s.connErr = f.Content
		s.mu.Unlock()
		s.emitState()
	case KindPing:
		s.send(newPongFrame())
	case KindPong:
		// Liveness confirmation only.
	default:
		s.logger.Printf("orbit: ignoring unknown frame kind %q", f.Type)
	}
}

func (s *Session) handlePrivateMessage(f *Frame, selfID int64) {
	convID := PrivateConversationID(f.From, f.To)
	msg := s.messageFromFrame(f, selfID)
	msg.RecipientID = f.To
	s.conversations.append(convID, msg)
	if f.From != selfID {
		s.unread.increment(convID)
	}
	s.handlers.emitMessage(convID, *msg)
}

func (s *Session) handleGroupMessage(f *Frame, selfID int64) {
	convID := GroupConversationID(f.GroupID)
	msg := s.messageFromFrame(f, selfID)
	msg.GroupID = f.GroupID
	s.conversations.append(convID, msg)
	if f.From != selfID {
		s.unread.increment(convID)
	}
	s.handlers.emitMessage(convID, *msg)
}

// messageFromFrame builds the stored message from the frame's top-level
// fields, preferring the richer data.message object when the server sends
// one.
func (s *Session) messageFromFrame(f *Frame, selfID int64) *Message {
	msg := &Message{
		ID:           f.MessageID,
		Content:      f.Content,
		SenderID:     f.From,
		Timestamp:    f.Timestamp,
		IsOwnMessage: f.From == selfID,
	}
	if payload, err := decodeData[MessageData](f); err == nil && payload.Message != nil {
		if payload.Message.ID != "" {
			msg.ID = payload.Message.ID
		}
		if payload.Message.Content != "" {
			msg.Content = payload.Message.Content
		}
		if !payload.Message.Timestamp.IsZero() {
			msg.Timestamp = payload.Message.Timestamp
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func (s *Session) handleTyping(f *Frame, selfID int64) {
	// Own typing echoes carry no information for this client.
	if f.From == selfID {
		return
	}
	payload, err := decodeData[TypingData](f)
	if err != nil {
		s.logger.Printf("orbit: %v", err)
		return
	}

	var convID string
	if f.GroupID != 0 {
		convID = GroupConversationID(f.GroupID)
	} else {
		convID = PrivateConversationID(f.From, f.To)
	}
	key := typingKey{ConversationID: convID, UserID: f.From}

	if payload.IsTyping {
		s.typing.start(key)
	} else {
		s.typing.stop(key)
	}
	s.handlers.emitTyping(convID, f.From, payload.IsTyping)
}

func (s *Session) handleReadStatus(f *Frame, selfID int64) {
	reader := f.From
	if payload, err := decodeData[ReadStatusData](f); err == nil && payload.ReadBy != 0 {
		reader = payload.ReadBy
	}
	// Acking one's own read is a no-op.
	if reader == selfID {
		return
	}
	at := f.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	convID := PrivateConversationID(reader, f.To)
	s.conversations.markPeerRead(convID, at)
}

func (s *Session) handlePresence(f *Frame, online bool) {
	payload, err := decodeData[PresenceData](f)
	if err != nil {
		s.logger.Printf("orbit: %v", err)
		return
	}
	if online {
		s.presence.setOnline(payload.UserID)
	} else {
		s.presence.setOffline(payload.UserID)
	}
	s.handlers.emitPresence(payload.UserID, online)
}

func (s *Session) handleUserList(f *Frame) {
	payload, err := decodeData[UserListData](f)
	if err != nil {
		s.logger.Printf("orbit: %v", err)
		return
	}
	s.presence.replaceAll(payload.OnlineUsers)
}

func (s *Session) handleNotification(f *Frame) {
	if s.sink == nil {
		return
	}
	payload, err := decodeData[Notification](f)
	if err != nil {
		s.logger.Printf("orbit: %v", err)
		return
	}
	s.sink.Publish(*payload)
}
