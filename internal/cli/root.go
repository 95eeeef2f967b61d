// Package cli implements the feedmail command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedmail/internal/config"
)

// app is the state shared by the commands of one invocation.
type app struct {
	configPath string
	debug      bool
	cfg        *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "feedmail",
		Short: "Deliver RSS and Atom feed entries into IMAP folders",
		Long: `feedmail reads RSS and Atom feeds and appends every new entry as an email
message into a mailbox folder, so feeds can be read with any mail client.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return setupLogger(cmd.ErrOrStderr(), cfg.Logging, a.debug)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath(), "Path to the settings file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		a.newCmd(),
		a.emailCmd(),
		a.addCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.resetCmd(),
		a.runCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.serveCmd(),
		a.passwordCmd(),
	)
	return root
}

// Execute runs the command line.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger installs the default slog logger.
func setupLogger(w io.Writer, cfg config.Logging, debug bool) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown logging.format %q", cfg.Format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
