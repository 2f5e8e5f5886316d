// Package outbound implements the outbound notification channel (spec
// §4.6): an ordered chain of eligibility checks culminating in a
// sliding-window rate limit, in front of a pluggable delivery transport.
package outbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noble1911/butler/internal/storage"
)

// TransportStatus reports what happened to a message handed to the
// transport after every eligibility check passed.
type TransportStatus string

const (
	StatusSent   TransportStatus = "sent"
	StatusQueued TransportStatus = "queued"
)

// Transport delivers one message to one phone number. A "queued" status
// (transport temporarily disconnected but durable) is not an error.
type Transport interface {
	Send(ctx context.Context, phone, message string) (TransportStatus, error)
}

// RateLimiter enforces a per-key sliding-window budget.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter builds a RateLimiter allowing max hits per window, per key.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

// Allow prunes entries older than the window, then reports whether key is
// still under budget, recording the attempt if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= r.max {
		r.hits[key] = kept
		return false
	}
	r.hits[key] = append(kept, now)
	return true
}

// Channel implements send_message (spec §4.6): user lookup, preference
// gating, quiet hours, rate limiting, then transport handoff.
type Channel struct {
	Users     storage.UserStore
	Transport Transport
	Limiter   *RateLimiter
	now       func() time.Time
}

// NewChannel builds a Channel with a shared rate limiter across all users;
// Allow is keyed per user id so one chatty user can't starve another's
// budget.
func NewChannel(users storage.UserStore, transport Transport, rateLimitMax int, rateLimitWindow time.Duration) *Channel {
	return &Channel{
		Users:     users,
		Transport: transport,
		Limiter:   NewRateLimiter(rateLimitMax, rateLimitWindow),
		now:       time.Now,
	}
}

// SendMessage runs the ordered eligibility chain from spec §4.6 and, on
// pass, hands off to the transport. The returned string is either a
// human-readable skip reason or the outcome ("sent"/"queued"); err is only
// set on an actual transport failure.
func (c *Channel) SendMessage(ctx context.Context, userID, message, category string) (string, error) {
	user, err := c.Users.Get(ctx, userID)
	if err != nil {
		if err == storage.ErrNotFound {
			return "skipped: user not found", nil
		}
		return "", fmt.Errorf("look up user: %w", err)
	}
	if user.Phone == "" {
		return "skipped: user has no phone configured", nil
	}
	if !user.Notify.Enabled {
		return "skipped: notifications disabled for user", nil
	}
	if !categoryAllowed(user.Notify.Categories, category) {
		return fmt.Sprintf("skipped: category %q not opted in", category), nil
	}

	loc, err := resolveLocation(user.Notify.Timezone)
	if err != nil {
		return "", fmt.Errorf("resolve timezone: %w", err)
	}
	if inQuietHours(c.now().In(loc), user.Notify.QuietStart, user.Notify.QuietEnd) {
		return "skipped: within quiet hours", nil
	}

	if !c.Limiter.Allow(userID) {
		return "skipped: rate limit exceeded", nil
	}

	status, err := c.Transport.Send(ctx, user.Phone, message)
	if err != nil {
		return "", fmt.Errorf("transport send: %w", err)
	}
	return string(status), nil
}

func categoryAllowed(categories []string, category string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}

func resolveLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", tz, err)
	}
	return loc, nil
}

// inQuietHours interprets start/end as "HH:MM" in the already-localized
// clock time t. An empty start or end disables the window. The window may
// cross midnight: if start > end, a time is "in" the window when it falls
// at or after start OR before end.
func inQuietHours(t time.Time, start, end string) bool {
	if start == "" || end == "" {
		return false
	}
	startMin, err := parseHHMM(start)
	if err != nil {
		return false
	}
	endMin, err := parseHHMM(end)
	if err != nil {
		return false
	}
	nowMin := t.Hour()*60 + t.Minute()

	if startMin == endMin {
		return false
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid HH:MM %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid HH:MM %q", s)
	}
	return h*60 + m, nil
}
