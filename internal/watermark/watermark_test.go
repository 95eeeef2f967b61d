package watermark

import (
	"fmt"
	"testing"
	"time"

	"github.com/bryan-buckman/feedmail/internal/model"
)

var base = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

// newestFirst builds n messages dated one hour apart, newest at index 0.
func newestFirst(n int) []model.Message {
	msgs := make([]model.Message, n)
	for i := range msgs {
		msgs[i] = model.Message{
			ID:       fmt.Sprintf("id-%d", i),
			LastDate: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return msgs
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestFindNewMessagesFirstRead(t *testing.T) {
	t.Parallel()

	f := model.NewFeed("https://example.com/feed", model.FeedConfig{})
	for n := 0; n < 5; n++ {
		msgs := newestFirst(n)
		_, tail, found := FindNewMessages(f, msgs)
		if found || tail != n {
			t.Errorf("n=%d: tail=%d found=%v, want whole list", n, tail, found)
		}
		if got := NewMessages(f, msgs); len(got) != n {
			t.Errorf("n=%d: %d new messages", n, len(got))
		}
	}
}

func TestFindNewMessagesByID(t *testing.T) {
	t.Parallel()

	msgs := newestFirst(6)
	for k := range msgs {
		f := model.NewFeed("u", model.FeedConfig{})
		f.LastMessage = msgs[k].ID
		_, tail, found := FindNewMessages(f, msgs)
		if !found || tail != k {
			t.Errorf("k=%d: tail=%d found=%v", k, tail, found)
		}
	}
}

func TestFindNewMessagesIDBeforeDate(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{
		{ID: "fresh", LastDate: base.Add(time.Hour)},
		{ID: "seen", LastDate: base.Add(time.Hour)},
		{ID: "older", LastDate: base.Add(-time.Hour)},
	}
	f := model.NewFeed("u", model.FeedConfig{})
	f.LastMessage = "seen"
	f.LastUpdated = base
	if got := ids(NewMessages(f, msgs)); len(got) != 1 || got[0] != "fresh" {
		t.Errorf("new = %v, want [fresh]", got)
	}
}

func TestFindNewMessagesByDate(t *testing.T) {
	t.Parallel()

	msgs := newestFirst(6)
	for k := 1; k < len(msgs); k++ {
		f := model.NewFeed("u", model.FeedConfig{})
		// strictly between message k-1 and message k
		f.LastUpdated = msgs[k].LastDate.Add(30 * time.Minute)
		got := NewMessages(f, msgs)
		if len(got) != k {
			t.Errorf("k=%d: new = %v", k, ids(got))
		}
	}
}

func TestFindNewMessagesEqualDateIsNotABoundary(t *testing.T) {
	t.Parallel()

	msgs := newestFirst(3)
	f := model.NewFeed("u", model.FeedConfig{})
	f.LastUpdated = msgs[1].LastDate
	_, tail, found := FindNewMessages(f, msgs)
	if !found || tail != 2 {
		t.Errorf("tail=%d found=%v, want boundary at the first strictly older message", tail, found)
	}
}

func TestFindNewMessagesUnorderedFeed(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{
		{ID: "a", LastDate: base},
		{ID: "old", LastDate: base.Add(-48 * time.Hour)},
		{ID: "b", LastDate: base.Add(time.Hour)},
	}
	f := model.NewFeed("u", model.FeedConfig{})
	f.LastUpdated = base.Add(-time.Hour)
	if got := ids(NewMessages(f, msgs)); len(got) != 1 || got[0] != "a" {
		t.Errorf("new = %v, want scan to stop at the first older message", got)
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msgs []model.Message
		want string
	}{
		{
			name: "single",
			msgs: []model.Message{{ID: "only", LastDate: base}},
			want: "only",
		},
		{
			name: "newest first",
			msgs: newestFirst(4),
			want: "id-0",
		},
		{
			name: "newest in the middle",
			msgs: []model.Message{
				{ID: "a", LastDate: base},
				{ID: "b", LastDate: base.Add(time.Hour)},
				{ID: "c", LastDate: base.Add(-time.Hour)},
			},
			want: "b",
		},
		{
			name: "equal dates prefer the first",
			msgs: []model.Message{
				{ID: "first", LastDate: base},
				{ID: "second", LastDate: base},
			},
			want: "first",
		},
		{
			name: "tie not involving the first goes to the last scanned",
			msgs: []model.Message{
				{ID: "a", LastDate: base},
				{ID: "b", LastDate: base.Add(time.Hour)},
				{ID: "c", LastDate: base.Add(time.Hour)},
			},
			want: "c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Latest(tt.msgs)
			if !ok || got.ID != tt.want {
				t.Errorf("Latest() = %q, %v, want %q", got.ID, ok, tt.want)
			}
		})
	}

	if _, ok := Latest(nil); ok {
		t.Error("Latest(nil) reported a message")
	}
}

func attemptsOf(msgs []model.Message, delivered ...bool) []Attempt {
	out := make([]Attempt, len(msgs))
	for i, m := range msgs {
		out[i] = Attempt{Message: m, Delivered: delivered[i]}
	}
	return out
}

func TestAdvanceBestEffort(t *testing.T) {
	t.Parallel()

	f := model.NewFeed("u", model.FeedConfig{})
	msgs := newestFirst(3)
	got := Advance(f, attemptsOf(msgs, false, true, false), BestEffort, false)
	if got.LastMessage != "id-0" || !got.LastUpdated.Equal(msgs[0].LastDate) {
		t.Errorf("Advance() = %q %v, want failures to be covered too", got.LastMessage, got.LastUpdated)
	}
	if got.URL != f.URL {
		t.Errorf("URL changed to %q", got.URL)
	}
}

func TestAdvanceStrict(t *testing.T) {
	t.Parallel()

	msgs := newestFirst(4)
	tests := []struct {
		name      string
		delivered []bool
		want      string
	}{
		{"all delivered", []bool{true, true, true, true}, "id-0"},
		{"newest failed", []bool{false, true, true, true}, "id-1"},
		{"failure in the middle halts", []bool{true, true, false, true}, "id-3"},
		{"oldest failed", []bool{true, true, true, false}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := model.NewFeed("u", model.FeedConfig{})
			got := Advance(f, attemptsOf(msgs, tt.delivered...), Strict, false)
			if got.LastMessage != tt.want {
				t.Errorf("LastMessage = %q, want %q", got.LastMessage, tt.want)
			}
			if tt.want == "" && !got.LastUpdated.Equal(f.LastUpdated) {
				t.Errorf("LastUpdated moved to %v", got.LastUpdated)
			}
		})
	}
}

func TestAdvanceUnchanged(t *testing.T) {
	t.Parallel()

	f := model.NewFeed("u", model.FeedConfig{})
	f.LastMessage = "previous"
	f.LastUpdated = base

	if got := Advance(f, attemptsOf(newestFirst(2), true, true), BestEffort, true); got != f {
		t.Errorf("do not save: got %+v", got)
	}
	if got := Advance(f, nil, BestEffort, false); got != f {
		t.Errorf("nothing attempted: got %+v", got)
	}
}

func TestAdvanceNeverRegresses(t *testing.T) {
	t.Parallel()

	f := model.NewFeed("u", model.FeedConfig{})
	f.LastUpdated = base.Add(24 * time.Hour)
	got := Advance(f, attemptsOf(newestFirst(1), true), BestEffort, false)
	if !got.LastUpdated.Equal(f.LastUpdated) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, f.LastUpdated)
	}
	if got.LastMessage != "id-0" {
		t.Errorf("LastMessage = %q", got.LastMessage)
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Policy{"": BestEffort, "best_effort": BestEffort, "strict": Strict} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("sometimes"); err == nil {
		t.Error("ParsePolicy accepted an unknown policy")
	}
}
