// Package message renders entries as ready-to-append MIME messages.
package message

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/bryan-buckman/feedmail/internal/model"
)

//go:embed templates/message.html
var templateFS embed.FS

// DefaultTemplate is the HTML shell around entry content.
var DefaultTemplate = template.Must(template.ParseFS(templateFS, "templates/message.html"))

// PlaceholderFrom is the sender of entries that have no author.
const PlaceholderFrom = "feedmail@feed.invalid"

var (
	// ErrCantPutDateInMessage is returned when the entry date can't be
	// written as a valid Date header.
	ErrCantPutDateInMessage = errors.New("message can't parse date")
	// ErrCantPutFirstAuthorInMessage is returned when the first author is not
	// a valid mailbox. Setting "from" in the feed config works around it.
	ErrCantPutFirstAuthorInMessage = errors.New("unable to parse first author, consider setting \"from\" in the feed config")
)

// Options configure a Builder.
type Options struct {
	// AccountUser is the recipient when no email is configured.
	AccountUser string
	// Template renders the HTML body. Nil selects DefaultTemplate.
	Template *template.Template
	// IDDomain is the right-hand side of generated Message-IDs.
	IDDomain string
}

// Builder renders messages. It holds no mutable state.
type Builder struct {
	accountUser string
	tmpl        *template.Template
	idDomain    string
	converter   *md.Converter
}

// NewBuilder creates a builder.
func NewBuilder(opts Options) *Builder {
	if opts.Template == nil {
		opts.Template = DefaultTemplate
	}
	if opts.IDDomain == "" {
		opts.IDDomain = "feedmail"
	}
	return &Builder{
		accountUser: opts.AccountUser,
		tmpl:        opts.Template,
		idDomain:    opts.IDDomain,
		converter:   md.NewConverter("", true, nil),
	}
}

type page struct {
	ID string
	// Href is what the title links to.
	Href    string
	Title   string
	Content template.HTML
	Links   []string
}

// Body renders the HTML shell for msg. msg.Content must already be processed.
func (b *Builder) Body(msg model.Message) (string, error) {
	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, page{
		ID:      msg.ID,
		Href:    titleHref(msg),
		Title:   msg.Title,
		Content: template.HTML(msg.Content),
		Links:   msg.Links,
	})
	if err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}
	return buf.String(), nil
}

// titleHref picks the entry id when it is a web address, and the first web
// link otherwise. Ids like tag: or urn: URIs don't open in a mail client.
func titleHref(msg model.Message) string {
	if isWebURL(msg.ID) {
		return msg.ID
	}
	for _, l := range msg.Links {
		if isWebURL(l) {
			return l
		}
	}
	return msg.ID
}

func isWebURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Build renders msg as a multipart/alternative message addressed according
// to cfg, falling back to defaults.
func (b *Builder) Build(msg model.Message, cfg, defaults model.FeedConfig) ([]byte, error) {
	var h mail.Header

	date, err := FormatDate(msg.LastDate)
	if err != nil {
		return nil, err
	}
	h.Set("Date", date)

	resolved := cfg.Resolve(defaults)
	if err := b.setFrom(&h, msg, resolved); err != nil {
		return nil, err
	}
	to := resolved.Email
	if to == "" {
		to = b.accountUser
	}
	if addr, err := netmail.ParseAddress(to); err == nil {
		h.SetAddressList("To", []*mail.Address{addr})
	} else {
		h.Set("To", to)
	}
	h.SetSubject(Subject(msg.Title))
	h.SetMessageID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(msg.ID)).String() + "@" + b.idDomain)

	html, err := b.Body(msg)
	if err != nil {
		return nil, err
	}
	text, err := b.converter.ConvertString(html)
	if err != nil {
		slog.Warn("can't render text alternative, using links only", "links", msg.Links, "error", err)
		text = msg.Title + "\n\n" + strings.Join(msg.Links, "\n")
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := writePart(w, "text/plain", text); err != nil {
		return nil, err
	}
	if err := writePart(w, "text/html", html); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) setFrom(h *mail.Header, msg model.Message, cfg model.FeedConfig) error {
	switch {
	case cfg.From != "":
		h.Set("From", cfg.From)
	case len(msg.Authors) > 0:
		addr, err := netmail.ParseAddress(msg.Authors[0])
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrCantPutFirstAuthorInMessage, msg.Authors[0], err)
		}
		h.SetAddressList("From", []*mail.Address{addr})
	default:
		h.Set("From", PlaceholderFrom)
	}
	return nil
}

func writePart(w *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := w.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return pw.Close()
}

// FormatDate renders t as an RFC 2822 date in UTC with the "-0000" zone,
// and checks that mail readers will parse it back.
func FormatDate(t time.Time) (string, error) {
	s := t.UTC().Format("Mon, 02 Jan 2006 15:04:05") + " -0000"
	if _, err := netmail.ParseDate(s); err != nil {
		return "", fmt.Errorf("%w from %s: %v", ErrCantPutDateInMessage, s, err)
	}
	return s, nil
}

// Subject is the entry title without line breaks.
func Subject(title string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(title)
}
