package message

import (
	"bytes"
	"errors"
	"html/template"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/bryan-buckman/feedmail/internal/model"
)

type decoded struct {
	header mail.Header
	parts  map[string]string // content type -> body
}

func decode(t *testing.T, raw []byte) *decoded {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	defer mr.Close()

	d := &decoded{header: mr.Header, parts: map[string]string{}}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			t.Fatalf("unexpected part header %T", p.Header)
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			t.Fatal(err)
		}
		d.parts[ct] = string(body)
	}
	return d
}

func sample() model.Message {
	return model.Message{
		ID:       "https://blog.example.com/posts/42",
		Title:    "A title\nspanning lines",
		Content:  `<p>Entry <b>content</b> with café</p>`,
		Links:    []string{"https://blog.example.com/posts/42", "https://mirror.example.net/42"},
		Authors:  []string{`"Jane Doe" <jane@example.com>`},
		LastDate: time.Date(2024, time.March, 5, 10, 30, 0, 0, time.FixedZone("CET", 3600)),
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Options{AccountUser: "me@example.org"})
	raw, err := b.Build(sample(), model.FeedConfig{}, model.FeedConfig{Email: "reader@example.org"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	d := decode(t, raw)

	if got := d.header.Get("Date"); got != "Tue, 05 Mar 2024 09:30:00 -0000" {
		t.Errorf("Date = %q", got)
	}
	subject, err := d.header.Subject()
	if err != nil || subject != "A titlespanning lines" {
		t.Errorf("Subject = %q, %v", subject, err)
	}
	from, err := d.header.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Address != "jane@example.com" || from[0].Name != "Jane Doe" {
		t.Errorf("From = %v, %v", from, err)
	}
	to, err := d.header.AddressList("To")
	if err != nil || len(to) != 1 || to[0].Address != "reader@example.org" {
		t.Errorf("To = %v, %v", to, err)
	}
	id, err := d.header.MessageID()
	if err != nil || !strings.HasSuffix(id, "@feedmail") {
		t.Errorf("Message-ID = %q, %v", id, err)
	}

	html := d.parts["text/html"]
	for _, want := range []string{
		`<div id="body"><p>Entry <b>content</b> with café</p></div>`,
		`<a href="https://blog.example.com/posts/42">A title`,
		`URL: <a href="https://mirror.example.net/42">https://mirror.example.net/42</a>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html part lacks %q:\n%s", want, html)
		}
	}
	text := d.parts["text/plain"]
	if !strings.Contains(text, "**content**") || !strings.Contains(text, "https://mirror.example.net/42") {
		t.Errorf("text part = %q", text)
	}
}

func TestBuildMessageIDIsStable(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Options{})
	first, err := b.Build(sample(), model.FeedConfig{}, model.FeedConfig{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(sample(), model.FeedConfig{}, model.FeedConfig{})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := decode(t, first).header.MessageID()
	c, _ := decode(t, second).header.MessageID()
	if a == "" || a != c {
		t.Errorf("Message-IDs %q and %q differ", a, c)
	}
}

func TestBuildFromResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		authors []string
		from    string
		want    string
		wantErr error
	}{
		{name: "explicit from wins", authors: []string{`"A" <a@example.com>`}, from: "News <news@example.org>", want: "news@example.org"},
		{name: "first author", authors: []string{`"A" <a@example.com>`, `"B" <b@example.com>`}, want: "a@example.com"},
		{name: "placeholder", want: PlaceholderFrom},
		{name: "malformed first author", authors: []string{"not a mailbox"}, wantErr: ErrCantPutFirstAuthorInMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := sample()
			msg.Authors = tt.authors
			raw, err := NewBuilder(Options{}).Build(msg, model.FeedConfig{From: tt.from}, model.FeedConfig{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			from, err := decode(t, raw).header.AddressList("From")
			if err != nil || len(from) != 1 || from[0].Address != tt.want {
				t.Errorf("From = %v, %v, want %s", from, err, tt.want)
			}
		})
	}
}

func TestBuildToResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      model.FeedConfig
		defaults model.FeedConfig
		want     string
	}{
		{"feed email", model.FeedConfig{Email: "feed@example.com"}, model.FeedConfig{Email: "default@example.com"}, "feed@example.com"},
		{"default email", model.FeedConfig{}, model.FeedConfig{Email: "default@example.com"}, "default@example.com"},
		{"account user", model.FeedConfig{}, model.FeedConfig{}, "login@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw, err := NewBuilder(Options{AccountUser: "login@example.com"}).Build(sample(), tt.cfg, tt.defaults)
			if err != nil {
				t.Fatal(err)
			}
			to, err := decode(t, raw).header.AddressList("To")
			if err != nil || len(to) != 1 || to[0].Address != tt.want {
				t.Errorf("To = %v, %v, want %s", to, err, tt.want)
			}
		})
	}
}

func TestBuildRejectsUnrepresentableDate(t *testing.T) {
	t.Parallel()

	msg := sample()
	msg.LastDate = time.Date(12000, time.January, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewBuilder(Options{}).Build(msg, model.FeedConfig{}, model.FeedConfig{}); !errors.Is(err, ErrCantPutDateInMessage) {
		t.Errorf("Build() error = %v, want ErrCantPutDateInMessage", err)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	got, err := FormatDate(time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC))
	if err != nil || got != "Sun, 31 Dec 2023 23:59:59 -0000" {
		t.Errorf("FormatDate() = %q, %v", got, err)
	}
}

func TestCustomTemplate(t *testing.T) {
	t.Parallel()

	tmpl := template.Must(template.New("t").Parse(`<article>{{.Title}}|{{.Content}}</article>`))
	body, err := NewBuilder(Options{Template: tmpl}).Body(sample())
	if err != nil {
		t.Fatal(err)
	}
	if body != "<article>A title\nspanning lines|<p>Entry <b>content</b> with café</p></article>" {
		t.Errorf("Body() = %q", body)
	}
}

func TestBodyTitleLink(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Options{})
	tests := []struct {
		name  string
		id    string
		links []string
		want  string
	}{
		{"web id", "https://blog.example.com/42", []string{"https://mirror.example.net/42"}, `href="https://blog.example.com/42"`},
		{"tag id links to first web link", "tag:example.com,2024:42", []string{"mailto:x@example.com", "https://example.com/42"}, `href="https://example.com/42"`},
		{"urn id without links", "urn:uuid:60a76c80-d399-11d9-b93c-0003939e0af6", nil, `href="#ZgotmplZ"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := sample()
			msg.ID = tt.id
			msg.Links = tt.links
			body, err := b.Body(msg)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(body, `<h1 class="header"><a `+tt.want+`>`) {
				t.Errorf("title link lacks %s:\n%s", tt.want, body)
			}
		})
	}
}
