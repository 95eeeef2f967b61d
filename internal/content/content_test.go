package content

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryan-buckman/feedmail/internal/fetch"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// countingFetcher serves fixed bodies and counts calls per URL.
type countingFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  map[string]int
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return body, nil
}

func imgSources(t *testing.T, doc string) []string {
	t.Helper()
	q, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("goquery: %v", err)
	}
	var out []string
	q.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		out = append(out, src)
	})
	return out
}

func TestProcessWithoutInliningIsIdentity(t *testing.T) {
	t.Parallel()

	p := NewProcessor(&countingFetcher{}, NewCache())
	inputs := []string{
		"",
		`<p>Hello <IMG SRC="https://example.com/a.png"></p>`,
		"<div class=x>unclosed <b>tags & raw ampersands",
		"not html at all",
	}
	for _, in := range inputs {
		out, err := p.Process(context.Background(), in, false)
		if err != nil || out != in {
			t.Errorf("Process(%q, false) = %q, %v", in, out, err)
		}
	}
}

func TestProcessInlinesImages(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{bodies: map[string][]byte{
		"https://img.example.com/a.png": pngBytes,
		"https://img.example.com/b.gif": []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
	}}
	p := NewProcessor(f, NewCache())

	in := `<p class="intro">Look:</p><img src="https://img.example.com/a.png" alt="a"><br/>` +
		`<img alt="b" src="https://img.example.com/b.gif" />` +
		`<img src="https://img.example.com/missing.png">` +
		`<img src="/relative.png"><img src="data:image/png;base64,AAAA">` +
		`<!-- comment --><script>var x = "<img src=x>";</script>`
	out, err := p.Process(context.Background(), in, true)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	srcs := imgSources(t, out)
	want := []string{
		"data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
		"data:image/gif;base64,",
		"https://img.example.com/missing.png",
		"/relative.png",
		"data:image/png;base64,AAAA",
	}
	if len(srcs) != len(want) {
		t.Fatalf("img sources = %v", srcs)
	}
	for i := range want {
		if !strings.HasPrefix(srcs[i], want[i]) {
			t.Errorf("img %d src = %q, want prefix %q", i, srcs[i], want[i])
		}
	}

	for _, kept := range []string{
		`<p class="intro">Look:</p>`,
		`<br/>`,
		`<img src="https://img.example.com/missing.png">`,
		`<img src="/relative.png">`,
		`<!-- comment --><script>var x = "<img src=x>";</script>`,
	} {
		if !strings.Contains(out, kept) {
			t.Errorf("output lost %q:\n%s", kept, out)
		}
	}
	if f.calls["https://img.example.com/missing.png"] != 1 {
		t.Errorf("missing image fetched %d times", f.calls["https://img.example.com/missing.png"])
	}
	if len(f.calls) != 3 {
		t.Errorf("fetched %v, want only remote images", f.calls)
	}
}

func TestProcessUsesCache(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{bodies: map[string][]byte{"https://img.example.com/a.png": pngBytes}}
	cache := NewCache()
	p := NewProcessor(f, cache)

	in := `<img src="https://img.example.com/a.png">`
	for i := 0; i < 3; i++ {
		if _, err := p.Process(context.Background(), in, true); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.calls["https://img.example.com/a.png"]; n != 1 {
		t.Errorf("image fetched %d times, want 1", n)
	}
	if cache.Len() != 1 {
		t.Errorf("cache has %d entries", cache.Len())
	}
}

func TestProcessOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a lying header must not matter
		w.Header().Set("Content-Type", "text/plain")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	p := NewProcessor(fetch.New(fetch.Options{DelayPerDomain: -1}), nil)
	out, err := p.Process(context.Background(), `<img src="`+srv.URL+`/pic">`, true)
	if err != nil {
		t.Fatal(err)
	}
	srcs := imgSources(t, out)
	if len(srcs) != 1 || !strings.HasPrefix(srcs[0], "data:image/png;base64,") {
		t.Errorf("src = %v", srcs)
	}
}
