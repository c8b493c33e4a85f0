// Package dispatch is the event dispatcher: the single cooperative
// event loop that receives normalized platform events and fans them out to
// the thread registry, message mirror, and closure scheduler with the
// correct serialisation, consulting the self-delete suppression set before
// routing a delete onward.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/gomodmail/modmail/mirror"
	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/thread"
)

// Dispatcher routes platform.Events to the mirror and thread registry.
type Dispatcher struct {
	registry *thread.Registry
	mirror   *mirror.Mirror
	logger   *slog.Logger

	suppress *suppressionSet
}

// New constructs a Dispatcher.
func New(registry *thread.Registry, m *mirror.Mirror, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		mirror:   m,
		logger:   logger,
		suppress: newSuppressionSet(),
	}
}

// SuppressNextDelete marks a platform message id so the next delete event
// observed for it is dropped rather than routed to the mirror. Call this
// immediately before the relay itself issues a delete, to avoid the
// self-triggered event looping back into Mirror.Delete a second time.
func (d *Dispatcher) SuppressNextDelete(platformMessageID string) {
	d.suppress.add(platformMessageID)
}

// Run consumes events from l until ctx is cancelled, routing each to the
// appropriate component. It never returns an error: per-event failures are
// logged so a single bad event never crashes the process.
func (d *Dispatcher) Run(ctx context.Context, l platform.Listener) {
	events := l.Listen(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev platform.Event) {
	if ev.IsBot {
		return
	}

	switch ev.Kind {
	case platform.EventDMReceived:
		d.handleDMReceived(ctx, ev)
	case platform.EventDMEdited:
		d.handleEdited(ctx, ev)
	case platform.EventDMDeleted, platform.EventChannelMessageDeleted:
		d.handleDeleted(ctx, ev)
	case platform.EventChannelMessageEdited:
		d.handleChannelEdited(ctx, ev)
	case platform.EventReactionAdded:
		d.handleReaction(ctx, ev, reactionAdd)
	case platform.EventReactionRemoved:
		d.handleReaction(ctx, ev, reactionRemove)
	case platform.EventReactionRemovedAll:
		d.handleReaction(ctx, ev, reactionRemoveAll)
	case platform.EventMemberLeft:
		d.handleMemberLeft(ctx, ev)
	default:
		d.logger.Warn("dispatch: unknown event kind", "kind", ev.Kind)
	}
}

func (d *Dispatcher) handleDMReceived(ctx context.Context, ev platform.Event) {
	err := d.registry.WithUserLock(ev.UserID, func() error {
		return d.mirror.HandleInboundDM(ctx, mirror.InboundDM{
			UserID:      ev.UserID,
			UserName:    ev.UserName,
			Text:        ev.Text,
			Attachments: ev.Attachments,
			DMMessageID: ev.Ref.MessageID,
		})
	})
	if err != nil {
		d.logger.Error("dispatch: inbound dm handling failed", "user_id", ev.UserID, "error", err)
	}
}

func (d *Dispatcher) handleEdited(ctx context.Context, ev platform.Event) {
	if err := d.mirror.EditByDM(ctx, ev.Ref.MessageID, ev.Text); err != nil {
		d.logger.Error("dispatch: dm edit propagation failed", "message_id", ev.Ref.MessageID, "error", err)
	}
}

func (d *Dispatcher) handleChannelEdited(ctx context.Context, ev platform.Event) {
	// A staff-side edit of the bot's own echo is not user-editable content;
	// only operator edits issued through the reply-edit command (handled by
	// Mirror.EditByNumber via the command surface) change content. A raw
	// platform edit of the echo message itself has no defined propagation
	// target and is ignored here.
}

func (d *Dispatcher) handleDeleted(ctx context.Context, ev platform.Event) {
	if d.suppress.consume(ev.Ref.MessageID) {
		return
	}
	if err := d.mirror.Delete(ctx, ev.Ref.MessageID); err != nil {
		d.logger.Error("dispatch: delete propagation failed", "message_id", ev.Ref.MessageID, "error", err)
	}
}

type reactionKind int

const (
	reactionAdd reactionKind = iota
	reactionRemove
	reactionRemoveAll
)

func (d *Dispatcher) handleReaction(ctx context.Context, ev platform.Event, kind reactionKind) {
	var err error
	switch kind {
	case reactionAdd:
		err = d.mirror.ReactAdd(ctx, ev.Ref.MessageID, ev.Emoji)
	case reactionRemove:
		err = d.mirror.ReactRemove(ctx, ev.Ref.MessageID, ev.Emoji)
	case reactionRemoveAll:
		err = d.mirror.ReactRemoveAll(ctx, ev.Ref.MessageID, ev.Emoji)
	}
	if err != nil {
		d.logger.Error("dispatch: reaction propagation failed", "message_id", ev.Ref.MessageID, "error", err)
	}
}

func (d *Dispatcher) handleMemberLeft(ctx context.Context, ev platform.Event) {
	t, err := d.registry.LookupByUser(ctx, ev.UserID)
	if err != nil {
		d.logger.Error("dispatch: lookup thread for member leave failed", "user_id", ev.UserID, "error", err)
		return
	}
	if t == nil {
		return
	}
	if err := d.registry.MarkUserLeft(ctx, t.ID); err != nil {
		d.logger.Error("dispatch: mark user left failed", "thread_id", t.ID, "error", err)
		return
	}
	d.mirror.NotifyUserLeft(ctx, t)
}
