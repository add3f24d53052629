package orbit

import "fmt"

// Conversation ids are derived deterministically so that both ends of a
// private conversation compute the same key regardless of which side they
// are on. Private and group ids live in separate namespaces and can never
// collide thanks to their distinct prefixes.

// PrivateConversationID returns the conversation id for the private
// conversation between two users. The two ids are sorted ascending before
// concatenation, so PrivateConversationID(a, b) == PrivateConversationID(b, a).
func PrivateConversationID(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("private_%d_%d", a, b)
}

// GroupConversationID returns the conversation id for a group conversation.
func GroupConversationID(groupID int64) string {
	return fmt.Sprintf("group_%d", groupID)
}

// ConversationID derives a conversation id from a pair of user ids or a
// group id. A non-zero groupID takes precedence.
func ConversationID(userA, userB, groupID int64) string {
	if groupID != 0 {
		return GroupConversationID(groupID)
	}
	return PrivateConversationID(userA, userB)
}
