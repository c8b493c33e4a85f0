// Package memtest is an in-memory fake of platform.Adapter for tests: no
// network, no SDK, deterministic ids. It records every call so tests can
// assert on what the relay tried to do to the platform.
package memtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gomodmail/modmail/platform"
)

// Adapter is a fake platform.Adapter backed by in-process maps.
type Adapter struct {
	mu sync.Mutex

	nextID      int64
	dmMessages  map[string]recordedMessage   // message id -> message
	chMessages  map[string]recordedMessage
	channels    map[string]string // channel id -> parent category
	members     map[int64]bool
	dmHistory   map[int64][]platform.HistoryMessage
	chHistory   map[string][]platform.HistoryMessage

	events chan platform.Event

	// Failures lets a test force a specific call to fail by key.
	Failures map[string]error
}

type recordedMessage struct {
	payload platform.Payload
	userID  int64
	chanID  string
}

// New returns an empty fake adapter. No user is a member until SetMember
// marks them as one.
func New() *Adapter {
	return &Adapter{
		dmMessages: make(map[string]recordedMessage),
		chMessages: make(map[string]recordedMessage),
		channels:   make(map[string]string),
		members:    make(map[int64]bool),
		dmHistory:  make(map[int64][]platform.HistoryMessage),
		chHistory:  make(map[string][]platform.HistoryMessage),
		events:     make(chan platform.Event, 64),
		Failures:   make(map[string]error),
	}
}

// SetMember controls IsMember's answer for a user.
func (a *Adapter) SetMember(userID int64, isMember bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.members[userID] = isMember
}

// Emit pushes an event as if it arrived from the platform, for tests of the
// event dispatcher.
func (a *Adapter) Emit(ev platform.Event) {
	a.events <- ev
}

// Listen implements platform.Listener.
func (a *Adapter) Listen(ctx context.Context) <-chan platform.Event {
	out := make(chan platform.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-a.events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (a *Adapter) nextMessageID() string {
	id := atomic.AddInt64(&a.nextID, 1)
	return fmt.Sprintf("msg-%d", id)
}

func (a *Adapter) failure(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Failures[key]
}

func (a *Adapter) SendDM(ctx context.Context, userID int64, payload platform.Payload) (string, error) {
	if err := a.failure("SendDM"); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.members[userID] {
		return "", platform.ErrNotMember
	}
	id := a.nextMessageID()
	a.dmMessages[id] = recordedMessage{payload: payload, userID: userID}
	return id, nil
}

func (a *Adapter) SendChannel(ctx context.Context, channelID string, payload platform.Payload) (string, error) {
	if err := a.failure("SendChannel"); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextMessageID()
	a.chMessages[id] = recordedMessage{payload: payload, chanID: channelID}
	return id, nil
}

func (a *Adapter) EditMessage(ctx context.Context, ref platform.MessageRef, payload platform.Payload) error {
	if err := a.failure("EditMessage"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch ref.Surface {
	case platform.DM:
		m, ok := a.dmMessages[ref.MessageID]
		if !ok {
			return fmt.Errorf("memtest: no such dm message %q", ref.MessageID)
		}
		m.payload = payload
		a.dmMessages[ref.MessageID] = m
	case platform.Channel:
		m, ok := a.chMessages[ref.MessageID]
		if !ok {
			return fmt.Errorf("memtest: no such channel message %q", ref.MessageID)
		}
		m.payload = payload
		a.chMessages[ref.MessageID] = m
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	if err := a.failure("DeleteMessage"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch ref.Surface {
	case platform.DM:
		delete(a.dmMessages, ref.MessageID)
	case platform.Channel:
		delete(a.chMessages, ref.MessageID)
	}
	return nil
}

func (a *Adapter) React(ctx context.Context, ref platform.MessageRef, emoji string) error {
	return a.failure("React")
}

func (a *Adapter) Unreact(ctx context.Context, ref platform.MessageRef, emoji string) error {
	return a.failure("Unreact")
}

func (a *Adapter) CreateChannel(ctx context.Context, parentCategory, name string) (string, error) {
	if err := a.failure("CreateChannel"); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := fmt.Sprintf("chan-%d", atomic.AddInt64(&a.nextID, 1))
	a.channels[id] = parentCategory
	return id, nil
}

func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	if err := a.failure("DeleteChannel"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.channels, channelID)
	return nil
}

func (a *Adapter) FetchDMHistoryAfter(ctx context.Context, userID int64, sinceMessageID string) ([]platform.HistoryMessage, error) {
	if err := a.failure("FetchDMHistoryAfter"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return filterHistoryAfter(a.dmHistory[userID], sinceMessageID), nil
}

func (a *Adapter) FetchChannelHistoryAfter(ctx context.Context, channelID, sinceMessageID string) ([]platform.HistoryMessage, error) {
	if err := a.failure("FetchChannelHistoryAfter"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return filterHistoryAfter(a.chHistory[channelID], sinceMessageID), nil
}

func (a *Adapter) IsMember(ctx context.Context, userID int64) (bool, error) {
	if err := a.failure("IsMember"); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.members[userID], nil
}

// SeedDMHistory installs history a later FetchDMHistoryAfter call returns,
// for recovery-worker tests.
func (a *Adapter) SeedDMHistory(userID int64, msgs ...platform.HistoryMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dmHistory[userID] = append(a.dmHistory[userID], msgs...)
}

// SeedChannelHistory is the staff-channel analogue of SeedDMHistory.
func (a *Adapter) SeedChannelHistory(channelID string, msgs ...platform.HistoryMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chHistory[channelID] = append(a.chHistory[channelID], msgs...)
}

// ChannelMessageTexts returns the text of every message sent to channelID,
// in send order, for tests asserting on staff-channel notices.
func (a *Adapter) ChannelMessageTexts(channelID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []string
	for id, m := range a.chMessages {
		if m.chanID == channelID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return messageSeq(ids[i]) < messageSeq(ids[j]) })
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = a.chMessages[id].payload.Text
	}
	return out
}

func messageSeq(id string) int64 {
	var n int64
	fmt.Sscanf(id, "msg-%d", &n)
	return n
}

func filterHistoryAfter(all []platform.HistoryMessage, sinceMessageID string) []platform.HistoryMessage {
	if sinceMessageID == "" {
		out := make([]platform.HistoryMessage, len(all))
		copy(out, all)
		return out
	}
	for i, m := range all {
		if m.MessageID == sinceMessageID {
			out := make([]platform.HistoryMessage, len(all)-i-1)
			copy(out, all[i+1:])
			return out
		}
	}
	out := make([]platform.HistoryMessage, len(all))
	copy(out, all)
	return out
}
