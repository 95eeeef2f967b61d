package feed

import (
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"

	"github.com/bryan-buckman/feedmail/internal/author"
	"github.com/bryan-buckman/feedmail/internal/model"
)

// RSSDocument is an RSS channel.
type RSSDocument struct {
	Feed *rss.Feed
}

func (d *RSSDocument) Format() Format { return FormatRSS }

// Timestamp is pubDate, else lastBuildDate, else the current time.
func (d *RSSDocument) Timestamp() time.Time {
	text := firstNonEmpty(d.Feed.PubDate, d.Feed.LastBuildDate)
	if text == "" {
		return now()
	}
	t, err := tryHardToParse(text)
	if err != nil {
		slog.Debug("unparseable channel date, using current time", "date", text, "error", err)
		return now()
	}
	return t
}

func (d *RSSDocument) entryCount() int { return len(d.Feed.Items) }

func (d *RSSDocument) extractMessage(i int) (model.Message, error) {
	item := d.Feed.Items[i]
	slog.Debug("reading RSS entry", "title", item.Title, "link", item.Link)

	date, err := d.itemDate(item)
	if err != nil {
		return model.Message{}, err
	}

	var links []string
	if item.Link != "" {
		links = []string{item.Link}
	}
	id := NoID
	switch {
	case item.GUID != nil && item.GUID.Value != "":
		id = item.GUID.Value
	case len(links) > 0:
		id = links[0]
	}

	return model.Message{
		ID:       id,
		Title:    item.Title,
		Content:  firstNonEmpty(item.Content, item.Description),
		Links:    links,
		Authors:  author.Mailboxes(d.authors(item), d.domain()),
		LastDate: date,
	}, nil
}

func (d *RSSDocument) authors(item *rss.Item) []string {
	if item.Author != "" {
		return []string{item.Author}
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return item.DublinCoreExt.Creator
	}
	return []string{d.Feed.Title}
}

func (d *RSSDocument) domain() string {
	if host := hostOf(d.Feed.Link); host != "" {
		return host
	}
	return PlaceholderDomain
}

// itemDate resolves the entry date: pubDate, then the Dublin Core date, then
// the channel dates.
func (d *RSSDocument) itemDate(item *rss.Item) (time.Time, error) {
	if item.PubDate != "" {
		return tryHardToParse(strings.ReplaceAll(item.PubDate, "UTC", "UT"))
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Date) > 0 {
		return parseRFC3339(item.DublinCoreExt.Date[0])
	}
	slog.Debug("entry has neither pubDate nor dc:date, using channel date", "link", item.Link)
	if d.Feed.PubDate != "" {
		return tryHardToParse(d.Feed.PubDate)
	}
	if d.Feed.LastBuildDate != "" {
		return tryHardToParse(d.Feed.LastBuildDate)
	}
	return time.Time{}, ErrNoDateFound
}
