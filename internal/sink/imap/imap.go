// Package imap appends messages to an IMAP mailbox.
package imap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Security selects how the connection is protected.
type Security string

const (
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
	SecurityInsecure Security = "insecure"
)

// DefaultMailbox receives messages of feeds without a folder.
const DefaultMailbox = "INBOX"

// Config holds the account settings.
type Config struct {
	Server   string
	Port     int
	User     string
	Password string
	Security Security
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 993
		if c.Security == SecurityStartTLS || c.Security == SecurityInsecure {
			port = 143
		}
	}
	return net.JoinHostPort(c.Server, strconv.Itoa(port))
}

// Sink appends messages over a lazily opened IMAP connection. Appends are
// serialized since a connection runs one command at a time.
type Sink struct {
	cfg Config

	mu     sync.Mutex
	client *imapclient.Client
}

// New creates a sink. No connection is made until the first append.
func New(cfg Config) *Sink {
	return &Sink{cfg: cfg}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "imap"
}

// Append stores content in mailbox, creating the mailbox when the server
// says it doesn't exist yet. On failure the connection is dropped, and
// cancelling ctx closes it to abort a command in flight.
func (s *Sink) Append(ctx context.Context, mailbox string, content []byte) error {
	if mailbox == "" {
		mailbox = DefaultMailbox
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := s.connectLocked()
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	err = s.appendLocked(c, mailbox, content)
	if !stop() {
		s.dropLocked()
		return fmt.Errorf("append to %q: %w", mailbox, ctx.Err())
	}
	return err
}

func (s *Sink) appendLocked(c *imapclient.Client, mailbox string, content []byte) error {
	err := appendMessage(c, mailbox, content)
	if isMissingMailbox(err) {
		slog.Info("creating mailbox", "mailbox", mailbox)
		if cerr := c.Create(mailbox, nil).Wait(); cerr != nil {
			s.dropLocked()
			return fmt.Errorf("create mailbox %q: %w", mailbox, cerr)
		}
		err = appendMessage(c, mailbox, content)
	}
	if err != nil {
		s.dropLocked()
		return fmt.Errorf("append to %q: %w", mailbox, err)
	}
	return nil
}

// Reconnect drops the current connection and opens a new one.
func (s *Sink) Reconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked()
	_, err := s.connectLocked()
	return err
}

// Close logs out.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client.Close()
	s.client = nil
	return err
}

func (s *Sink) connectLocked() (*imapclient.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	addr := s.cfg.addr()
	var (
		c   *imapclient.Client
		err error
	)
	switch s.cfg.Security {
	case SecurityStartTLS:
		c, err = imapclient.DialStartTLS(addr, nil)
	case SecurityInsecure:
		c, err = imapclient.DialInsecure(addr, nil)
	default:
		c, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := c.Login(s.cfg.User, s.cfg.Password).Wait(); err != nil {
		_ = c.Logout().Wait()
		c.Close()
		return nil, fmt.Errorf("authentication failed for %s: %w", s.cfg.User, err)
	}
	slog.Debug("connected to IMAP", "server", addr, "user", s.cfg.User)
	s.client = c
	return c, nil
}

func (s *Sink) dropLocked() {
	if s.client == nil {
		return
	}
	s.client.Close()
	s.client = nil
}

func appendMessage(c *imapclient.Client, mailbox string, content []byte) error {
	cmd := c.Append(mailbox, int64(len(content)), nil)
	if _, err := cmd.Write(content); err != nil {
		cmd.Close()
		return err
	}
	if err := cmd.Close(); err != nil {
		return err
	}
	_, err := cmd.Wait()
	return err
}

func isMissingMailbox(err error) bool {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return false
	}
	return imapErr.Code == imap.ResponseCodeTryCreate || imapErr.Code == imap.ResponseCodeNonExistent
}
