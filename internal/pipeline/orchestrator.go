// Package pipeline runs feeds through extraction, rendering and delivery.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bryan-buckman/feedmail/internal/content"
	"github.com/bryan-buckman/feedmail/internal/feed"
	"github.com/bryan-buckman/feedmail/internal/message"
	"github.com/bryan-buckman/feedmail/internal/model"
	"github.com/bryan-buckman/feedmail/internal/sink"
	"github.com/bryan-buckman/feedmail/internal/watermark"
)

// Options configure an Orchestrator.
type Options struct {
	// Defaults is the global feed configuration.
	Defaults model.FeedConfig
	Policy   watermark.Policy
	// DoNotSave leaves every watermark untouched.
	DoNotSave bool
}

// Orchestrator processes one feed document at a time. It is safe for
// concurrent use as long as its collaborators are.
type Orchestrator struct {
	processor *content.Processor
	builder   *message.Builder
	sink      sink.Sink
	opts      Options
}

// NewOrchestrator wires the per-feed pipeline.
func NewOrchestrator(p *content.Processor, b *message.Builder, s sink.Sink, opts Options) *Orchestrator {
	if opts.Policy == "" {
		opts.Policy = watermark.BestEffort
	}
	return &Orchestrator{processor: p, builder: b, sink: s, opts: opts}
}

// Result is the outcome of one feed.
type Result struct {
	// Feed is the state to persist. It equals the input on any feed-level error.
	Feed      model.Feed
	Found     int
	Attempted int
	Delivered int
	Err       error
}

// Process delivers the new entries of data, the feed's document, and
// returns the feed with its watermark advanced.
func (o *Orchestrator) Process(ctx context.Context, f model.Feed, data []byte) Result {
	doc, err := feed.Parse(data)
	if err != nil {
		slog.Error("can't read feed", "feed", f.URL, "error", err)
		return Result{Feed: f, Err: err}
	}
	slog.Info("reading feed",
		"feed", f.URL,
		"format", doc.Format(),
		"feed_date", doc.Timestamp(),
		"last_updated", f.LastUpdated,
	)

	messages, err := feed.Read(f.URL, doc)
	if err != nil {
		var extractErr *feed.ExtractError
		if errors.As(err, &extractErr) {
			slog.Error("some entries have no usable date, skipping the whole feed; please report it with the feed URL",
				"feed", f.URL,
				"failed", extractErr.Failed,
				"total", extractErr.Total,
				"error", err,
			)
		}
		return Result{Feed: f, Err: err}
	}

	fresh := watermark.NewMessages(f, messages)
	cfg := f.Config.Resolve(o.opts.Defaults)
	slog.Debug("new messages", "feed", f.URL, "new", len(fresh), "total", len(messages))

	res := Result{Found: len(messages)}
	attempts := make([]watermark.Attempt, 0, len(fresh))
	for _, m := range fresh {
		delivered := o.deliver(ctx, f, cfg, m)
		attempts = append(attempts, watermark.Attempt{Message: m, Delivered: delivered})
		res.Attempted++
		if delivered {
			res.Delivered++
		}
	}

	res.Feed = watermark.Advance(f, attempts, o.opts.Policy, o.opts.DoNotSave)
	return res
}

// deliver renders and appends one message. Every failure is logged here.
func (o *Orchestrator) deliver(ctx context.Context, f model.Feed, cfg model.FeedConfig, m model.Message) bool {
	processed, err := o.processor.Process(ctx, m.Content, cfg.InlineImageAsData)
	if err != nil {
		slog.Warn("can't process message content", "feed", f.URL, "links", m.Links, "error", err)
		return false
	}
	m.Content = processed

	raw, err := o.builder.Build(m, f.Config, o.opts.Defaults)
	if err != nil {
		slog.Warn("can't build message", "feed", f.URL, "links", m.Links, "error", err)
		return false
	}

	if err := o.sink.Append(ctx, cfg.Folder, raw); err != nil {
		slog.Error("message won't be delivered", "feed", f.URL, "title", m.Title, "mailbox", cfg.Folder, "error", err)
		return false
	}
	slog.Debug("delivered", "feed", f.URL, "title", m.Title, "mailbox", cfg.Folder)
	return true
}
