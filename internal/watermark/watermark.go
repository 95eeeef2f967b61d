// Package watermark decides which messages of a feed are new and where the
// feed's delivery boundary moves after a run.
package watermark

import (
	"fmt"

	"github.com/bryan-buckman/feedmail/internal/model"
)

// Policy selects how delivery failures affect the watermark.
type Policy string

const (
	// BestEffort advances over every attempted message, delivered or not.
	// A message is attempted at most once.
	BestEffort Policy = "best_effort"
	// Strict only advances over delivered messages, oldest first, and stops
	// at the first failure so it is attempted again on the next run.
	Strict Policy = "strict"
)

// ParsePolicy validates a configured policy name. Empty means BestEffort.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", BestEffort:
		return BestEffort, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("unknown watermark policy %q (want %q or %q)", name, BestEffort, Strict)
}

// FindNewMessages scans messages in document order for the delivery
// boundary: the last delivered message, or the first message older than the
// feed's last_updated. Messages before tail are new. When no boundary is
// found, every message is new.
func FindNewMessages(f model.Feed, messages []model.Message) (head, tail int, found bool) {
	for p, m := range messages {
		if f.LastMessage != "" && m.ID == f.LastMessage {
			return 0, p, true
		}
		if m.LastDate.Before(f.LastUpdated) {
			return 0, p, true
		}
	}
	return 0, len(messages), false
}

// NewMessages returns the slice of messages that were not delivered yet.
func NewMessages(f model.Feed, messages []model.Message) []model.Message {
	head, tail, _ := FindNewMessages(f, messages)
	return messages[head:tail]
}

// Latest picks the message the watermark moves to. Ties on date go to the
// last one scanned, unless the first message shares the maximum date: feeds
// without distinct timestamps list their newest entry first.
func Latest(messages []model.Message) (model.Message, bool) {
	if len(messages) == 0 {
		return model.Message{}, false
	}
	latest := messages[0]
	for _, m := range messages[1:] {
		if !m.LastDate.Before(latest.LastDate) {
			latest = m
		}
	}
	if len(messages) > 1 && messages[0].LastDate.Equal(latest.LastDate) {
		latest = messages[0]
	}
	return latest, true
}

// Attempt is the delivery outcome of one new message.
type Attempt struct {
	Message   model.Message
	Delivered bool
}

// Advance computes the feed state after a run. attempts must be in the order
// of the new slice. With doNotSave the feed is returned unchanged.
// last_updated never moves backwards.
func Advance(f model.Feed, attempts []Attempt, policy Policy, doNotSave bool) model.Feed {
	if doNotSave {
		return f
	}
	latest, ok := Latest(covered(attempts, policy))
	if !ok {
		return f
	}
	out := f
	if latest.LastDate.After(f.LastUpdated) {
		out.LastUpdated = latest.LastDate
	}
	out.LastMessage = latest.ID
	return out
}

// covered returns the messages the watermark may move past, newest first.
func covered(attempts []Attempt, policy Policy) []model.Message {
	if policy != Strict {
		out := make([]model.Message, 0, len(attempts))
		for _, a := range attempts {
			out = append(out, a.Message)
		}
		return out
	}
	// walk from the oldest attempt and stop at the first failure
	first := len(attempts)
	for i := len(attempts) - 1; i >= 0; i-- {
		if !attempts[i].Delivered {
			break
		}
		first = i
	}
	out := make([]model.Message, 0, len(attempts)-first)
	for _, a := range attempts[first:] {
		out = append(out, a.Message)
	}
	return out
}
