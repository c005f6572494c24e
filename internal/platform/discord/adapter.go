// Package discord implements the Discord platform on a discordgo gateway
// session. Guild channels map to group events keyed by channel id; direct
// messages map to private events.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// PlatformType is the platform type identifier used in configuration.
const PlatformType = "discord"

// maxMessageLength is Discord's per-message content limit in characters.
const maxMessageLength = 2000

// session is the part of *discordgo.Session the adapter uses.
type session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Adapter is a Discord platform.
type Adapter struct {
	name    string
	session session
	logger  *slog.Logger

	mu     sync.RWMutex
	selfID string
	sink   ports.EventSink
}

// New creates an adapter for a bot token.
func New(cfg config.PlatformConfig, logger *slog.Logger) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, domain.ErrInvalidRequest("discord platform requires a token")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	return newWithSession(cfg, s, logger), nil
}

func newWithSession(cfg config.PlatformConfig, s session, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		name:    cfg.Name,
		session: s,
		logger:  logger,
		selfID:  cfg.SelfID,
	}
}

// Factory adapts New to platform.Factory.
func Factory(cfg config.PlatformConfig, logger *slog.Logger) (ports.Platform, error) {
	return New(cfg, logger)
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Type() string { return PlatformType }

// Start opens the gateway connection and publishes messages until ctx is done.
func (a *Adapter) Start(ctx context.Context, sink ports.EventSink) error {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()

	removeReady := a.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.onReady(r)
	})
	removeCreate := a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.onMessage(ctx, m.Message)
	})
	defer removeReady()
	defer removeCreate()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	a.logger.Info("discord connected")

	<-ctx.Done()
	return nil
}

func (a *Adapter) started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sink != nil
}

func (a *Adapter) onReady(r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	a.mu.Lock()
	a.selfID = r.User.ID
	a.mu.Unlock()
}

func (a *Adapter) onMessage(ctx context.Context, m *discordgo.Message) {
	a.mu.RLock()
	selfID, sink := a.selfID, a.sink
	a.mu.RUnlock()

	if m == nil || m.Author == nil || m.Author.ID == selfID || sink == nil {
		return
	}
	ev := toEvent(a.name, selfID, m)
	if err := sink.Publish(ctx, ev); err != nil {
		a.logger.Warn("failed to publish discord event", slog.String("error", err.Error()))
	}
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>|@everyone|@here`)

// toEvent converts a Discord message. Mention tokens become at segments and
// attachments become media segments.
func toEvent(platformID, selfID string, m *discordgo.Message) *domain.Event {
	ev := &domain.Event{
		ID:         "evt_" + m.ID,
		Kind:       domain.KindMessage,
		PlatformID: platformID,
		SelfID:     selfID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.GlobalName,
		RawText:    m.Content,
		Time:       m.Timestamp,
	}
	if ev.SenderName == "" {
		ev.SenderName = m.Author.Username
	}
	if m.GuildID == "" {
		ev.Subtype = domain.SubtypePrivate
	} else {
		ev.Subtype = domain.SubtypeGroup
		ev.GroupID = m.ChannelID
	}

	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		ev.Message = append(ev.Message, domain.Reply(m.ReferencedMessage.ID, m.ReferencedMessage.Author.ID))
	}
	ev.Message = append(ev.Message, splitMentions(m.Content)...)

	for _, att := range m.Attachments {
		switch {
		case strings.HasPrefix(att.ContentType, "image/"):
			ev.Message = append(ev.Message, domain.Image(att.Filename, att.URL))
		case strings.HasPrefix(att.ContentType, "video/"):
			ev.Message = append(ev.Message, domain.Segment{Type: domain.SegmentVideo, ID: att.Filename, URL: att.URL})
		case strings.HasPrefix(att.ContentType, "audio/"):
			ev.Message = append(ev.Message, domain.Segment{Type: domain.SegmentRecord, ID: att.Filename, URL: att.URL})
		default:
			ev.Message = append(ev.Message, domain.Segment{Type: domain.SegmentShare, Title: att.Filename, URL: att.URL})
		}
	}
	return ev
}

func splitMentions(content string) []domain.Segment {
	var segs []domain.Segment
	last := 0
	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(content, -1) {
		if loc[0] > last {
			segs = append(segs, domain.Text(content[last:loc[0]]))
		}
		if loc[2] >= 0 {
			segs = append(segs, domain.At(content[loc[2]:loc[3]]))
		} else {
			segs = append(segs, domain.At(domain.AtAll))
		}
		last = loc[1]
	}
	if last < len(content) {
		segs = append(segs, domain.Text(content[last:]))
	}
	return segs
}

// Send posts text to a channel, or to the user's DM channel for private
// targets. Long replies are split at the message length limit.
func (a *Adapter) Send(ctx context.Context, subtype domain.Subtype, targetID, text string) error {
	channelID := targetID
	if subtype == domain.SubtypePrivate {
		ch, err := a.session.UserChannelCreate(targetID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("open dm channel: %w", err)
		}
		channelID = ch.ID
	}

	for _, chunk := range chunk(text, maxMessageLength) {
		if _, err := a.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func chunk(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	var out []string
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// Close disconnects the gateway session.
func (a *Adapter) Close() error {
	return a.session.Close()
}

var _ ports.Platform = (*Adapter)(nil)
