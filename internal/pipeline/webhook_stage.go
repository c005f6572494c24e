package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/safehttp"
)

// Webhook verdicts.
const (
	WebhookAllow = "allow"
	WebhookDeny  = "deny"
)

// WebhookRequest is the JSON body posted to a webhook gate.
type WebhookRequest struct {
	EventID    string    `json:"event_id"`
	PlatformID string    `json:"platform_id"`
	SessionID  string    `json:"session_id"`
	Subtype    string    `json:"subtype"`
	SenderID   string    `json:"sender_id"`
	GroupID    string    `json:"group_id,omitempty"`
	Text       string    `json:"text"`
	Time       time.Time `json:"time"`
}

// WebhookResponse is the verdict returned by a webhook gate.
type WebhookResponse struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// WebhookStage asks an external HTTP endpoint whether an event may continue.
// A deny verdict stops the event.
type WebhookStage struct {
	name    string
	url     string
	onError string
	retries int
	headers map[string]string
	client  *http.Client
}

// NewWebhookStage creates a webhook gate from its config entry.
func NewWebhookStage(cfg config.WebhookConfig) *WebhookStage {
	onError := cfg.OnError
	if onError == "" {
		onError = WebhookDeny
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &WebhookStage{
		name:    cfg.Name,
		url:     cfg.URL,
		onError: onError,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client:  safehttp.NewClient(timeout, cfg.BlockPrivate),
	}
}

// RegisterWebhooks adds a factory for every configured webhook.
func RegisterWebhooks(reg *Registry, hooks []config.WebhookConfig) error {
	for _, hook := range hooks {
		hook := hook
		if hook.Name == "" || hook.URL == "" {
			return domain.ErrInvalidRequest("webhook requires name and url")
		}
		if err := reg.Register(hook.Name, func() ports.Stage { return NewWebhookStage(hook) }); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the stage identifier.
func (s *WebhookStage) Name() string {
	return s.name
}

// Initialize implements ports.Stage.
func (s *WebhookStage) Initialize(ctx context.Context, pctx *ports.PipelineContext) error {
	return nil
}

// Process executes the webhook call.
func (s *WebhookStage) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	var lastErr error

	attempts := s.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		verdict, err := s.doRequest(ctx, ev)
		if err == nil {
			if verdict.Action == WebhookDeny {
				reason := verdict.Reason
				if reason == "" {
					reason = "denied by " + s.name
				}
				ev.Stop(reason)
			}
			return ports.Complete(), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	pctx.Log().Warn("webhook failed",
		slog.String("stage", s.name),
		slog.String("on_error", s.onError),
		slog.String("error", lastErr.Error()),
	)
	if s.onError != WebhookAllow {
		ev.Stop(fmt.Sprintf("webhook error: %v", lastErr))
	}
	return ports.Complete(), nil
}

func (s *WebhookStage) doRequest(ctx context.Context, ev *domain.Event) (*WebhookResponse, error) {
	body, err := json.Marshal(WebhookRequest{
		EventID:    ev.ID,
		PlatformID: ev.PlatformID,
		SessionID:  ev.SessionID(),
		Subtype:    string(ev.Subtype),
		SenderID:   ev.SenderID,
		GroupID:    ev.GroupID,
		Text:       ev.PlainText(),
		Time:       ev.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out WebhookResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("unmarshal webhook response: %w", err)
		}
	}

	switch out.Action {
	case WebhookAllow, WebhookDeny:
	case "":
		out.Action = WebhookAllow
	default:
		return nil, fmt.Errorf("invalid action from webhook: %s", out.Action)
	}

	return &out, nil
}

// Ensure WebhookStage implements the interface.
var _ ports.Stage = (*WebhookStage)(nil)
