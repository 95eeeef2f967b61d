package feed

import (
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"github.com/bryan-buckman/feedmail/internal/author"
	"github.com/bryan-buckman/feedmail/internal/model"
)

// AtomDocument is an Atom feed.
type AtomDocument struct {
	Feed *atom.Feed
}

func (d *AtomDocument) Format() Format { return FormatAtom }

// Timestamp is the feed's updated date. Feeds without one are dated in the
// far future so their content always looks fresh.
func (d *AtomDocument) Timestamp() time.Time {
	if d.Feed.Updated == "" {
		return farFuture
	}
	if t, err := parseRFC3339(d.Feed.Updated); err == nil {
		return t
	}
	if d.Feed.UpdatedParsed != nil {
		return *d.Feed.UpdatedParsed
	}
	return farFuture
}

func (d *AtomDocument) entryCount() int { return len(d.Feed.Entries) }

func (d *AtomDocument) extractMessage(i int) (model.Message, error) {
	entry := d.Feed.Entries[i]
	slog.Debug("reading atom entry", "id", entry.ID)

	date, err := entryDate(entry)
	if err != nil {
		return model.Message{}, err
	}

	links := make([]string, 0, len(entry.Links))
	for _, l := range entry.Links {
		if l.Href != "" {
			links = append(links, l.Href)
		}
	}
	id := entry.ID
	if id == "" {
		id = NoID
		if len(links) > 0 {
			id = links[0]
		}
	}

	content := entry.Summary
	if entry.Content != nil && entry.Content.Value != "" {
		content = entry.Content.Value
	}

	return model.Message{
		ID:       id,
		Title:    entry.Title,
		Content:  content,
		Links:    links,
		Authors:  author.Mailboxes(d.authors(entry), d.domain()),
		LastDate: date,
	}, nil
}

func (d *AtomDocument) authors(entry *atom.Entry) []string {
	var names []string
	for _, p := range entry.Authors {
		if p != nil {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		names = []string{d.Feed.Title}
	}
	return names
}

// domain is the host of the feed's self or alternate link.
func (d *AtomDocument) domain() string {
	for _, l := range d.Feed.Links {
		if l == nil || (l.Rel != "self" && l.Rel != "alternate" && l.Rel != "") {
			continue
		}
		if host := hostOf(l.Href); host != "" {
			return host
		}
	}
	return PlaceholderDomain
}

func entryDate(entry *atom.Entry) (time.Time, error) {
	switch {
	case entry.Updated != "":
		return parseRFC3339(entry.Updated)
	case entry.Published != "":
		return parseRFC3339(entry.Published)
	}
	return time.Time{}, ErrNoDateFound
}
