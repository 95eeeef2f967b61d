package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bryan-buckman/feedmail/internal/config"
	"github.com/bryan-buckman/feedmail/internal/content"
	"github.com/bryan-buckman/feedmail/internal/credential"
	"github.com/bryan-buckman/feedmail/internal/database"
	"github.com/bryan-buckman/feedmail/internal/fetch"
	"github.com/bryan-buckman/feedmail/internal/message"
	"github.com/bryan-buckman/feedmail/internal/pipeline"
	"github.com/bryan-buckman/feedmail/internal/sink"
	"github.com/bryan-buckman/feedmail/internal/sink/imap"
	"github.com/bryan-buckman/feedmail/internal/sink/ses"
	"github.com/bryan-buckman/feedmail/internal/sink/stdout"
	"github.com/bryan-buckman/feedmail/internal/watermark"
)

func openStore(cfg *config.Config) (database.Store, error) {
	return database.Open(database.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		DSN:     cfg.Store.DSN,
	})
}

// imapPassword returns the configured password, or the one kept in the
// keyring when the settings file has none.
func imapPassword(cfg *config.Config) (string, error) {
	if cfg.Email.Password != "" {
		return cfg.Email.Password, nil
	}
	creds, err := credential.Open(config.Dir())
	if err != nil {
		return "", err
	}
	password, err := creds.Get(cfg.Email.Server, cfg.Email.User)
	if errors.Is(err, credential.ErrNotFound) {
		return "", fmt.Errorf("no password for %s, set email.password or run `feedmail password`", cfg.Email.User)
	}
	return password, err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openSink builds the configured sink wrapped with retries. The returned
// closer releases its connection.
func openSink(ctx context.Context, cfg *config.Config, out io.Writer) (sink.Sink, io.Closer, error) {
	var s sink.Sink
	var closer io.Closer = closerFunc(func() error { return nil })

	switch cfg.Sink {
	case "imap":
		password, err := imapPassword(cfg)
		if err != nil {
			return nil, nil, err
		}
		is := imap.New(imap.Config{
			Server:   cfg.Email.Server,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: password,
			Security: imap.Security(cfg.Email.Secure),
		})
		s, closer = is, is
	case "ses":
		ss, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, nil, err
		}
		s = ss
	case "stdout":
		s = stdout.NewWithWriter(out)
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
	return sink.NewRetrying(s, cfg.Email.RetryMaxCount, cfg.Email.RetryDelay), closer, nil
}

// newRunner wires the fetchers, content processor, builder and orchestrator.
func newRunner(cfg *config.Config, s sink.Sink) (*pipeline.Runner, error) {
	policy, err := watermark.ParsePolicy(cfg.WatermarkPolicy)
	if err != nil {
		return nil, err
	}

	feeds := fetch.New(fetch.Options{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
	})
	images := fetch.New(fetch.Options{
		Timeout:   cfg.Images.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
	})

	orch := pipeline.NewOrchestrator(
		content.NewProcessor(images, content.NewCache()),
		message.NewBuilder(message.Options{AccountUser: cfg.Email.User}),
		s,
		pipeline.Options{
			Defaults:  cfg.Defaults,
			Policy:    policy,
			DoNotSave: cfg.DoNotSave,
		},
	)
	return pipeline.NewRunner(feeds, orch, cfg.Fetch.Concurrency, !cfg.DoNotSave), nil
}
