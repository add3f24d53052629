package orbit

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the generic API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Account types
// ============================================================================

// UserProfile is the authenticated user's identity as returned by the
// identity endpoint.
type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	About     string `json:"about,omitempty"`
}

// AuthData is returned by a successful login.
type AuthData struct {
	Token     string      `json:"token"`
	ExpiresIn string      `json:"expires_in,omitempty"`
	User      UserProfile `json:"user"`
}

// LoginOptions carries login credentials; Identifier accepts a username or
// an email address.
type LoginOptions struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// ============================================================================
// Group types
// ============================================================================

// Group is a group a user belongs to or may join.
type Group struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatorID   int64  `json:"creator_id"`
	MemberCount int    `json:"member_count,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// GroupMember is a member of a group.
type GroupMember struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	JoinedAt string `json:"joined_at,omitempty"`
}

// ============================================================================
// Notification types
// ============================================================================

// NotificationRecord is a stored notification as returned by the REST API,
// as opposed to Notification which arrives over the realtime socket.
type NotificationRecord struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RelatedID   int64     `json:"related_id,omitempty"`
	RelatedType string    `json:"related_type,omitempty"`
	FromUser    int64     `json:"from_user,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ============================================================================
// Request options
// ============================================================================

// PaginationOptions limits and offsets list endpoints.
type PaginationOptions struct {
	Limit  int
	Offset int
}
