package thread

import (
	"context"
	"strconv"
	"strings"
)

// sanitizeChannelName lowercases a user's display name, keeps ASCII letters
// and digits, turns hyphens, underscores and spaces into hyphens, and drops
// every other character, the way staff-channel names need to look on
// platforms that restrict channel name characters. A name with nothing left
// becomes "user".
func sanitizeChannelName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		return "user"
	}
	return out
}

// ResolveUserID accepts either a raw numeric id, an @mention ("<@123>"), or
// a staff-channel id bound to an open thread, and returns the underlying
// user id. Grounded on the original relay's "id" command, which let staff
// pass any of those three forms interchangeably when addressing a user.
func (r *Registry) ResolveUserID(ctx context.Context, raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)

	if id, ok := parseMention(raw); ok {
		return id, true, nil
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, true, nil
	}

	t, err := r.LookupByChannel(ctx, raw)
	if err != nil {
		return 0, false, err
	}
	if t == nil {
		return 0, false, nil
	}
	return t.UserID, true, nil
}

// ResolveChannelID is the inverse of ResolveUserID: given a user id, mention,
// or channel id, return the staff channel id bound to that user's open
// thread.
func (r *Registry) ResolveChannelID(ctx context.Context, raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)

	if userID, ok := parseMention(raw); ok {
		t, err := r.LookupByUser(ctx, userID)
		if err != nil || t == nil {
			return "", false, err
		}
		return t.ChannelID, true, nil
	}
	if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t, lookErr := r.LookupByUser(ctx, userID)
		if lookErr != nil || t == nil {
			return "", false, lookErr
		}
		return t.ChannelID, true, nil
	}

	t, err := r.LookupByChannel(ctx, raw)
	if err != nil || t == nil {
		return "", false, err
	}
	return t.ChannelID, true, nil
}

// parseMention extracts the numeric id from a "<@123>" or "<@!123>" style
// mention string.
func parseMention(raw string) (int64, bool) {
	if !strings.HasPrefix(raw, "<@") || !strings.HasSuffix(raw, ">") {
		return 0, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "<@"), ">")
	inner = strings.TrimPrefix(inner, "!")
	id, err := strconv.ParseInt(inner, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
