package chatsurface

// Element is one addressable region of a remote card.
type Element struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Action   string `json:"action,omitempty"`
	Label    string `json:"label,omitempty"`
}

const (
	ElementTypeDivider   = "divider"
	ElementTypeText      = "text"
	ElementTypeMarkdown  = "markdown"
	ElementTypeReasoning = "reasoning"
	ElementTypeButton    = "button"
)

// Card is the wire shape sent on creation and full updates.
type Card struct {
	Elements []Element    `json:"elements"`
	Settings CardSettings `json:"settings"`
}

type CardSettings struct {
	StreamingMode bool `json:"streaming_mode"`
}

// SettingsPatch updates a subset of card settings. Summary is the short text
// shown in chat-list previews and notifications.
type SettingsPatch struct {
	StreamingMode *bool  `json:"streaming_mode,omitempty"`
	Summary       string `json:"summary,omitempty"`
}

// AddMode controls where AddElements places new elements.
type AddMode string

const (
	AddModeAppend       AddMode = "append"
	AddModeInsertBefore AddMode = "insert_before"
)
