package orbit

// ============================================================================
// Notification Sink
// ============================================================================

// Notification is a structured server-side event (group invitation, event
// reminder, new follower, ...) delivered over the realtime socket. The
// session does not interpret notifications; it forwards them to the
// configured sink.
type Notification struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	RelatedID   int64  `json:"related_id,omitempty"`
	RelatedType string `json:"related_type,omitempty"`
	FromUser    int64  `json:"from_user,omitempty"`
}

// NotificationSink receives notifications forwarded by the session.
// Publish is called from the session's read goroutine and must not block.
type NotificationSink interface {
	Publish(n Notification)
}

// SinkFunc adapts a plain function to the NotificationSink interface.
type SinkFunc func(n Notification)

func (f SinkFunc) Publish(n Notification) { f(n) }

// ChannelSink buffers notifications on a channel for pull-style consumers.
// When the buffer is full, new notifications are dropped rather than
// blocking the session's read goroutine.
type ChannelSink struct {
	C chan Notification
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{C: make(chan Notification, buffer)}
}

func (s *ChannelSink) Publish(n Notification) {
	select {
	case s.C <- n:
	default:
	}
}
