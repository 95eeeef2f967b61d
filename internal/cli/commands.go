package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bryan-buckman/feedmail/internal/config"
	"github.com/bryan-buckman/feedmail/internal/credential"
	"github.com/bryan-buckman/feedmail/internal/database"
	"github.com/bryan-buckman/feedmail/internal/model"
	"github.com/bryan-buckman/feedmail/internal/opml"
	"github.com/bryan-buckman/feedmail/internal/pipeline"
	"github.com/bryan-buckman/feedmail/internal/server"
)

func (a *app) newCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Creates a new settings file with the given email address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil {
				slog.Warn("settings file already exists, leaving it unchanged", "path", a.configPath)
				return nil
			}
			err := config.Update(a.configPath, func(c *config.Config) {
				c.Defaults.Email = email
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings file %s created, please edit it to finish configuration.\n", a.configPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Address messages are sent to")
	cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) emailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "email <address>",
		Short: "Changes the default email address messages are sent to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Update(a.configPath, func(c *config.Config) {
				c.Defaults.Email = args[0]
			})
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var url, email, folder string
	var inline bool
	cmd := &cobra.Command{
		Use:   "add [--url URL] [--email EMAIL] [--folder FOLDER] [--inline] | add [folder] [email|folder] <url>",
		Short: "Adds a new feed given its url",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f model.Feed
			if url != "" {
				f = model.NewFeed(url, model.FeedConfig{Email: email, Folder: folder, InlineImageAsData: inline})
			} else {
				var err error
				if f, err = model.FeedFromArgs(args); err != nil {
					return err
				}
			}

			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.AddFeed(f); err != nil {
				if errors.Is(err, database.ErrFeedExists) {
					slog.Error("this feed is already read", "feed", f.URL)
					return nil
				}
				return err
			}
			slog.Info("added feed", "feed", f.URL, "config", f.Config.Describe(a.cfg.Defaults))
			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "Feed url")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Address this feed is sent to")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Destination folder")
	cmd.Flags().BoolVarP(&inline, "inline", "i", false, "Inline images as data URIs")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists all feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			feeds, err := store.GetFeeds()
			if err != nil {
				return err
			}
			for i, f := range feeds {
				fmt.Fprintf(cmd.OutOrStdout(), "%d : %s\n", i, f.Describe(a.cfg.Defaults))
			}
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Deletes the feed with the given list index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid feed index %q", args[0])
			}
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.DeleteFeed(index)
			if err != nil {
				return err
			}
			slog.Info("removed feed", "feed", removed.URL)
			return nil
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Removes every feed and the default feed settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Reset(); err != nil {
				return err
			}
			return config.Update(a.configPath, func(c *config.Config) {
				c.Defaults = model.FeedConfig{}
			})
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	var sinkName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reads every feed and delivers new entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sinkName != "" {
				a.cfg.Sink = sinkName
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, store, closeAll, err := a.openPipeline(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeAll()

			results, err := runner.Run(ctx, store)
			if err != nil {
				return err
			}
			if sum := pipeline.Summarize(results); sum.Failed > 0 {
				slog.Warn("some feeds could not be read", "failed", sum.Failed, "feeds", sum.Feeds)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sinkName, "sink", "", "Override the configured sink (imap, ses, stdout)")
	return cmd
}

// openPipeline opens the store and sink and wires a runner over them.
func (a *app) openPipeline(ctx context.Context, out io.Writer) (*pipeline.Runner, database.Store, func(), error) {
	store, err := openStore(a.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	s, closer, err := openSink(ctx, a.cfg, out)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	runner, err := newRunner(a.cfg, s)
	if err != nil {
		closer.Close()
		store.Close()
		return nil, nil, nil, err
	}
	closeAll := func() {
		if err := closer.Close(); err != nil {
			slog.Warn("can't close sink", "error", err)
		}
		store.Close()
	}
	return runner, store, closeAll, nil
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Exports subscriptions as an OPML file, to stdout when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			feeds, err := store.GetFeeds()
			if err != nil {
				return err
			}
			data, err := opml.Export("feedmail OPML Export", feeds, a.cfg.Defaults)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			slog.Info("exported feeds", "count", len(feeds), "path", args[0])
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Imports the subscriptions of an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			entries, err := opml.Parse(file)
			if err != nil {
				return err
			}
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			imported := 0
			for _, f := range opml.Feeds(entries) {
				if err := store.AddFeed(f); err != nil {
					if errors.Is(err, database.ErrFeedExists) {
						slog.Warn("this feed is already read", "feed", f.URL)
						continue
					}
					return err
				}
				imported++
			}
			slog.Info("imported feeds", "count", imported, "total", len(entries), "path", args[0])
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs feeds periodically and serves the HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, store, closeAll, err := a.openPipeline(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeAll()

			poller := pipeline.NewPoller(runner, store, a.cfg.Serve.Interval, server.RunTimeout)
			return server.New(store, runner, poller, a.cfg.Defaults).Start(ctx, a.cfg.Serve.Listen)
		},
	}
}

func (a *app) passwordCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Stores the IMAP password in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Email.Server == "" || a.cfg.Email.User == "" {
				return errors.New("email.server and email.user must be set first")
			}
			creds, err := credential.Open(config.Dir())
			if err != nil {
				return err
			}
			if remove {
				return creds.Delete(a.cfg.Email.Server, a.cfg.Email.User)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", a.cfg.Email.User)
			password, err := readPassword(cmd.InOrStdin())
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("empty password")
			}
			return creds.Set(a.cfg.Email.Server, a.cfg.Email.User, password)
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the stored password")
	return cmd
}

// readPassword reads one line, without echo when in is a terminal.
func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
