package domain

import "time"

// Session identifies one AI response end to end, from the triggering inbound
// message to the final (or recalled) reply. SessionID equals the trigger
// message id unless the caller regenerates it.
type Session struct {
	SessionID        string
	ChatID           string
	TriggerMessageID string
	RootID           string
	IsP2P            bool
	BotName          string
	CreatedAt        time.Time
}
