package conversation

import (
	"context"

	"taskbot/internal/models"
)

// EventKind is the kind of inbound chat event
type EventKind int

const (
	EventStart EventKind = iota
	EventHelp
	EventCategory
	EventText
	EventFile
	EventRemoveLast
	EventConfirm
	EventCancel
	EventMenu
	EventHistory
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventHelp:
		return "help"
	case EventCategory:
		return "category"
	case EventText:
		return "text"
	case EventFile:
		return "file"
	case EventRemoveLast:
		return "remove_last"
	case EventConfirm:
		return "confirm"
	case EventCancel:
		return "cancel"
	case EventMenu:
		return "menu"
	case EventHistory:
		return "history"
	}
	return "unknown"
}

// Event is one inbound message or button press of a conversation
type Event struct {
	Kind           EventKind
	ConversationID int64
	Author         models.Author
	// Text carries the message text, or the caption of a file message
	Text        string
	CategoryKey string
	File        models.FileRef
}

// Callback data of inline buttons
const (
	CallbackCategoryPrefix = "cat:"
	CallbackConfirm        = "act:confirm"
	CallbackCancel         = "act:cancel"
	CallbackRemoveLast     = "act:remove_last"
	CallbackMenu           = "act:menu"
)

// Button is an inline button with its callback data
type Button struct {
	Label string
	Data  string
}

// Reply is an outbound message with optional inline buttons
type Reply struct {
	Text    string
	Buttons [][]Button
}

// Replier delivers replies back to a conversation
type Replier interface {
	Reply(ctx context.Context, conversationID int64, r Reply) error
}

// State is the conversation state derived from the draft store
type State int

const (
	// StateIdle means there is no draft
	StateIdle State = iota
	// StateAwaitingCategory means a draft exists but no category is chosen
	StateAwaitingCategory
	// StateCollecting means a categorized draft is accepting text and files
	StateCollecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCategory:
		return "awaiting_category"
	case StateCollecting:
		return "collecting"
	}
	return "unknown"
}

// stateOf maps a draft to its conversation state
func stateOf(d *models.Draft) State {
	switch {
	case d == nil:
		return StateIdle
	case d.Category.IsZero():
		return StateAwaitingCategory
	default:
		return StateCollecting
	}
}
