// Package console implements a local chat platform on a readline prompt.
// Every line is a private message from the console user; replies are printed.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// PlatformType is the platform type identifier used in configuration.
const PlatformType = "console"

// Default identities of the two console participants.
const (
	DefaultUserID = "console"
	DefaultSelfID = "nekobot"
)

// Option configures the adapter.
type Option func(*Adapter)

// WithIO replaces the terminal, for tests and pipes.
func WithIO(in io.ReadCloser, out io.Writer) Option {
	return func(a *Adapter) {
		a.in = in
		a.out = out
		a.interactive = false
	}
}

// WithOnExit registers a callback invoked when the user leaves the prompt.
func WithOnExit(fn func()) Option {
	return func(a *Adapter) { a.onExit = fn }
}

// Adapter is the console platform.
type Adapter struct {
	name        string
	userID      string
	selfID      string
	historyFile string
	in          io.ReadCloser
	out         io.Writer
	interactive bool
	onExit      func()
	logger      *slog.Logger

	mu sync.Mutex
	rl *readline.Instance
}

// New creates a console adapter. cfg.SelfID overrides the bot identity.
func New(cfg config.PlatformConfig, logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		name:        cfg.Name,
		userID:      DefaultUserID,
		selfID:      cfg.SelfID,
		historyFile: cfg.HistoryFile,
		in:          os.Stdin,
		out:         os.Stdout,
		interactive: true,
		logger:      logger,
	}
	if a.name == "" {
		a.name = PlatformType
	}
	if a.selfID == "" {
		a.selfID = DefaultSelfID
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Factory adapts New to platform.Factory.
func Factory(cfg config.PlatformConfig, logger *slog.Logger) (ports.Platform, error) {
	return New(cfg, logger), nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Type() string { return PlatformType }

// Start reads lines until EOF, an interrupt, "exit" or ctx is done.
func (a *Adapter) Start(ctx context.Context, sink ports.EventSink) error {
	interactive := a.interactive
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     a.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           a.in,
		Stdout:          a.out,
		FuncIsTerminal:  func() bool { return interactive },
	})
	if err != nil {
		return fmt.Errorf("open console: %w", err)
	}
	a.mu.Lock()
	a.rl = rl
	a.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()
	defer func() {
		_ = a.Close()
		if a.onExit != nil {
			a.onExit()
		}
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read console: %w", err)
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		ev := domain.NewMessageEvent(a.name, domain.SubtypePrivate, a.userID, "", line)
		ev.SelfID = a.selfID
		ev.SenderName = a.userID
		if err := sink.Publish(ctx, ev); err != nil {
			a.logger.Warn("failed to publish console event", slog.String("error", err.Error()))
		}
	}
}

// Send prints a reply above the prompt.
func (a *Adapter) Send(ctx context.Context, subtype domain.Subtype, targetID, text string) error {
	line := fmt.Sprintf("%s> %s\n", a.selfID, text)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rl != nil {
		_, err := a.rl.Write([]byte(line))
		return err
	}
	_, err := io.WriteString(a.out, line)
	return err
}

// Close releases the terminal.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rl == nil {
		return nil
	}
	err := a.rl.Close()
	a.rl = nil
	return err
}

var _ ports.Platform = (*Adapter)(nil)
