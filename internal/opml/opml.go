// Package opml handles importing and exporting OPML files.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bryan-buckman/feedmail/internal/model"
)

// FolderSeparator joins nested OPML folders into a mailbox path.
const FolderSeparator = "/"

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry represents a flattened feed with its folder path.
type FeedEntry struct {
	FolderPath []string // e.g., ["Tech", "Google"]
	Title      string
	URL        string
}

// Folder is the mailbox the entry is filed in.
func (e FeedEntry) Folder() string {
	return strings.Join(e.FolderPath, FolderSeparator)
}

// Parse reads an OPML document and returns a flat list of FeedEntry.
func Parse(r io.Reader) ([]FeedEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var entries []FeedEntry
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, FeedEntry{
					FolderPath: append([]string{}, path...),
					Title:      title,
					URL:        o.XMLURL,
				})
			} else if len(o.Outlines) > 0 {
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path, name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// Feeds turns entries into subscriptions filed in their folder.
func Feeds(entries []FeedEntry) []model.Feed {
	feeds := make([]model.Feed, 0, len(entries))
	for _, e := range entries {
		feeds = append(feeds, model.NewFeed(e.URL, model.FeedConfig{Folder: e.Folder()}))
	}
	return feeds
}

// Export generates an OPML document with one outline per resolved folder.
// Feeds without any folder are written at the top level.
func Export(title string, feeds []model.Feed, defaults model.FeedConfig) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	grouped := make(map[string][]Outline)
	var names []string
	for _, f := range feeds {
		feedOutline := Outline{
			Text:   f.URL,
			Type:   "rss",
			XMLURL: f.URL,
		}
		folder := f.Config.Resolve(defaults).Folder
		if folder == "" {
			doc.Body.Outlines = append(doc.Body.Outlines, feedOutline)
			continue
		}
		if _, ok := grouped[folder]; !ok {
			names = append(names, folder)
		}
		grouped[folder] = append(grouped[folder], feedOutline)
	}

	sort.Strings(names)
	for _, name := range names {
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Text:     name,
			Title:    name,
			Outlines: grouped[name],
		})
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
