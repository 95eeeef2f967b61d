// Package content rewrites entry HTML before it is mailed.
package content

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrCantWriteTransformedMessage is returned when the HTML can't be tokenized.
var ErrCantWriteTransformedMessage = errors.New("can't write transformed message")

// ImageFetcher downloads an image.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Cache maps image URLs to data URIs. Entries are never invalidated.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

func (c *Cache) get(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uri, ok := c.entries[url]
	return uri, ok
}

func (c *Cache) put(url, uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = uri
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Processor inlines remote images as data URIs. It is safe for concurrent use.
type Processor struct {
	fetcher ImageFetcher
	cache   *Cache
}

// NewProcessor creates a processor. A nil cache disables caching.
func NewProcessor(fetcher ImageFetcher, cache *Cache) *Processor {
	return &Processor{fetcher: fetcher, cache: cache}
}

// Process returns src with every remote <img> source replaced by a data URI
// when inline is set, and src unchanged otherwise. Markup other than the
// rewritten tags is copied byte for byte. Images that can't be fetched keep
// their original source.
func (p *Processor) Process(ctx context.Context, src string, inline bool) (string, error) {
	if !inline {
		return src, nil
	}

	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	b.Grow(len(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return "", fmt.Errorf("%w: %v", ErrCantWriteTransformedMessage, z.Err())
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			b.Write(z.Raw())
			continue
		}
		// Token() lowercases the buffer Raw points into
		raw := string(z.Raw())
		tok := z.Token()
		if tok.DataAtom == atom.Img {
			if rewritten, ok := p.rewriteImg(ctx, tok); ok {
				b.WriteString(rewritten)
				continue
			}
		}
		b.WriteString(raw)
	}
}

func (p *Processor) rewriteImg(ctx context.Context, tok html.Token) (string, bool) {
	for i, attr := range tok.Attr {
		if attr.Namespace != "" || attr.Key != "src" {
			continue
		}
		if !isRemote(attr.Val) {
			return "", false
		}
		uri, err := p.dataURI(ctx, attr.Val)
		if err != nil {
			slog.Warn("can't inline image, keeping its remote source", "src", attr.Val, "error", err)
			return "", false
		}
		tok.Attr[i].Val = uri
		return tok.String(), true
	}
	return "", false
}

// isRemote reports whether src points to something that can be downloaded.
// Relative sources have no base to resolve against and are left alone.
func isRemote(src string) bool {
	s := strings.ToLower(strings.TrimSpace(src))
	if strings.HasPrefix(s, "data:") {
		return false
	}
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (p *Processor) dataURI(ctx context.Context, src string) (string, error) {
	if p.cache != nil {
		if uri, ok := p.cache.get(src); ok {
			return uri, nil
		}
	}
	data, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return "", err
	}
	uri := encode(data)
	if p.cache != nil {
		p.cache.put(src, uri)
	}
	return uri, nil
}

// encode builds a data URI, typed from the content itself.
func encode(data []byte) string {
	mime, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
