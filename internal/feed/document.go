// Package feed reads RSS and Atom documents into messages.
package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"

	"github.com/bryan-buckman/feedmail/internal/model"
)

// PlaceholderDomain is used for generated author addresses when the feed
// has no usable link.
const PlaceholderDomain = "feed.invalid"

// NoID is the id of entries that have neither a guid nor a link.
const NoID = "no id"

// now is replaced in tests.
var now = time.Now

// Format identifies a wire format.
type Format string

const (
	FormatAtom Format = "atom"
	FormatRSS  Format = "rss"
)

// Document is a parsed feed document. Its only implementations are
// *RSSDocument and *AtomDocument.
type Document interface {
	Format() Format
	// Timestamp returns the feed-level date.
	Timestamp() time.Time

	entryCount() int
	extractMessage(i int) (model.Message, error)
}

// Parse decodes a feed document, trying Atom first and RSS second.
func Parse(data []byte) (Document, error) {
	af, atomErr := (&atom.Parser{}).Parse(bytes.NewReader(data))
	if atomErr == nil {
		return &AtomDocument{Feed: af}, nil
	}
	rf, rssErr := (&rss.Parser{}).Parse(bytes.NewReader(data))
	if rssErr == nil {
		return &RSSDocument{Feed: rf}, nil
	}
	return nil, fmt.Errorf("%w (atom: %v, rss: %v)", ErrUnknownFormat, atomErr, rssErr)
}

// Read extracts every entry of doc, in document order. When any entry fails,
// no message is returned at all: a partial list would let the watermark
// move past entries that couldn't be ordered.
func Read(feedURL string, doc Document) ([]model.Message, error) {
	total := doc.entryCount()
	messages := make([]model.Message, 0, total)
	var errs []error
	for i := 0; i < total; i++ {
		msg, err := doc.extractMessage(i)
		if err != nil {
			slog.Debug("can't extract entry", "feed", feedURL, "entry", i, "error", err)
			errs = append(errs, err)
			continue
		}
		messages = append(messages, msg)
	}
	if len(errs) > 0 {
		return nil, &ExtractError{FeedURL: feedURL, Failed: len(errs), Total: total, Errs: errs}
	}
	return messages, nil
}

// hostOf returns the host of a link, or "" when it has none.
func hostOf(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
