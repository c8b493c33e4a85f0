package platform

import "context"

// EventKind discriminates the events an Adapter's subscription emits.
type EventKind int

const (
	EventDMReceived EventKind = iota
	EventDMEdited
	EventDMDeleted
	EventChannelMessageEdited
	EventChannelMessageDeleted
	EventReactionAdded
	EventReactionRemoved
	EventReactionRemovedAll
	EventMemberLeft
)

func (k EventKind) String() string {
	switch k {
	case EventDMReceived:
		return "dm_received"
	case EventDMEdited:
		return "dm_edited"
	case EventDMDeleted:
		return "dm_deleted"
	case EventChannelMessageEdited:
		return "channel_message_edited"
	case EventChannelMessageDeleted:
		return "channel_message_deleted"
	case EventReactionAdded:
		return "reaction_added"
	case EventReactionRemoved:
		return "reaction_removed"
	case EventReactionRemovedAll:
		return "reaction_removed_all"
	case EventMemberLeft:
		return "member_left"
	default:
		return "unknown"
	}
}

// Event is a single inbound occurrence from the platform, normalized enough
// for the event dispatcher to route without knowing the concrete
// platform SDK.
type Event struct {
	Kind EventKind

	// Ref identifies the message the event concerns, for edit/delete/react
	// events. Zero value for events without a message (member leave).
	Ref MessageRef

	UserID      int64
	UserName    string
	IsBot       bool
	Text        string // new text, for DMReceived/edited events
	Attachments []Attachment
	Emoji       string // for reaction events
	ActorID     int64  // who performed the reaction, for reaction events
}

// Listener is the subscription surface an Adapter exposes: a channel of
// normalized Events, closed when ctx is cancelled or the underlying
// connection is lost.
type Listener interface {
	Listen(ctx context.Context) <-chan Event
}
