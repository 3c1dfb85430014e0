package domain

// RecallRequest is the transient queue payload asking for a session's replies
// to be deleted. The retry counter travels as a message header, not here.
type RecallRequest struct {
	SessionID        string `json:"session_id"`
	ChatID           string `json:"chat_id,omitempty"`
	TriggerMessageID string `json:"trigger_message_id,omitempty"`
	Reason           string `json:"reason"`
	Detail           string `json:"detail,omitempty"`
}
