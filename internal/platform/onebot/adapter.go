// Package onebot implements the OneBot v11 platform (QQ via go-cqhttp,
// NapCat, Lagrange and friends). Events arrive over a forward websocket the
// adapter dials, a reverse websocket the implementation dials into, or HTTP
// POST; replies go out as send_*_msg actions.
package onebot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// PlatformType is the platform type identifier used in configuration.
const PlatformType = "onebot"

const (
	actionTimeout = 10 * time.Second
	maxBackoff    = 30 * time.Second
)

// ErrNotConnected is returned by Send when no transport can carry the action.
var ErrNotConnected = errors.New("onebot: no connection available")

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient sets the client used for HTTP API actions.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithDialer sets the websocket dialer used for forward connections.
func WithDialer(d *websocket.Dialer) Option {
	return func(a *Adapter) { a.dialer = d }
}

// Adapter is a OneBot v11 platform.
type Adapter struct {
	name   string
	url    string
	token  string
	logger *slog.Logger

	httpClient *http.Client
	dialer     *websocket.Dialer

	mu     sync.RWMutex
	selfID string
	sink   ports.EventSink
	conns  []*conn
	closed bool

	pendingMu sync.Mutex
	pending   map[string]chan *payload
}

// New creates an adapter. cfg.URL selects the outbound transport: ws(s)://
// dials a forward websocket, http(s):// posts actions to the HTTP API.
func New(cfg config.PlatformConfig, logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		name:       cfg.Name,
		url:        cfg.URL,
		token:      cfg.AccessToken,
		selfID:     cfg.SelfID,
		logger:     logger,
		httpClient: &http.Client{Timeout: actionTimeout},
		dialer:     websocket.DefaultDialer,
		pending:    make(map[string]chan *payload),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Factory adapts New to platform.Factory.
func Factory(cfg config.PlatformConfig, logger *slog.Logger) (ports.Platform, error) {
	if cfg.Name == "" {
		return nil, domain.ErrInvalidRequest("onebot platform requires a name")
	}
	return New(cfg, logger), nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Type() string { return PlatformType }

// SelfID returns the bot account id, learned from events when not configured.
func (a *Adapter) SelfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selfID
}

// Start feeds events to sink until ctx is done. With a ws(s) URL it keeps a
// forward connection alive; otherwise it only serves the reverse websocket
// and HTTP ingress handlers.
func (a *Adapter) Start(ctx context.Context, sink ports.EventSink) error {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()

	if isWebsocketURL(a.url) {
		a.dialLoop(ctx)
		return nil
	}
	<-ctx.Done()
	return nil
}

func (a *Adapter) dialLoop(ctx context.Context) {
	backoff := time.Second
	for {
		header := http.Header{}
		if a.token != "" {
			header.Set("Authorization", "Bearer "+a.token)
		}
		ws, _, err := a.dialer.DialContext(ctx, a.url, header)
		if err == nil {
			backoff = time.Second
			a.logger.Info("onebot connected", slog.String("url", a.url))
			err = a.serve(ctx, newConn(ws))
			a.logger.Warn("onebot connection lost", slog.String("error", errString(err)))
		} else {
			a.logger.Warn("onebot dial failed",
				slog.String("url", a.url),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// serve reads from c until it fails or ctx is done.
func (a *Adapter) serve(ctx context.Context, c *conn) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		c.close()
		return errors.New("adapter closed")
	}
	a.conns = append(a.conns, c)
	a.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-done:
		}
	}()

	defer func() {
		a.removeConn(c)
		c.close()
	}()
	return c.readLoop(func(data []byte) { a.handle(ctx, data) })
}

func (a *Adapter) removeConn(c *conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.conns {
		if existing == c {
			a.conns = append(a.conns[:i], a.conns[i+1:]...)
			return
		}
	}
}

func (a *Adapter) firstConn() *conn {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.conns) == 0 {
		return nil
	}
	return a.conns[0]
}

// handle routes one inbound frame or POST body.
func (a *Adapter) handle(ctx context.Context, data []byte) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		a.logger.Warn("invalid onebot payload", slog.String("error", err.Error()))
		return
	}

	if p.isActionResponse() {
		a.resolve(&p)
		return
	}

	if p.PostType == "meta_event" {
		if p.SelfID != "" {
			a.mu.Lock()
			if a.selfID == "" {
				a.selfID = string(p.SelfID)
			}
			a.mu.Unlock()
		}
		return
	}

	ev, err := p.toEvent(a.name)
	if err != nil {
		a.logger.Warn("failed to parse onebot event", slog.String("error", err.Error()))
		return
	}
	if ev == nil {
		return
	}
	if ev.SelfID == "" {
		ev.SelfID = a.SelfID()
	}

	a.mu.RLock()
	sink := a.sink
	a.mu.RUnlock()
	if sink == nil {
		a.logger.Warn("onebot event dropped before start", slog.String("event_id", ev.ID))
		return
	}
	if err := sink.Publish(ctx, ev); err != nil {
		a.logger.Warn("failed to publish onebot event", slog.String("error", err.Error()))
	}
}

// Send delivers text as a send_*_msg action.
func (a *Adapter) Send(ctx context.Context, subtype domain.Subtype, targetID, text string) error {
	action, params := sendAction(subtype, targetID, text)
	_, err := a.CallAction(ctx, action, params)
	return err
}

func sendAction(subtype domain.Subtype, targetID, text string) (string, map[string]any) {
	switch subtype {
	case domain.SubtypePrivate:
		return "send_private_msg", map[string]any{"user_id": numericID(targetID), "message": text}
	case domain.SubtypeDiscuss:
		return "send_discuss_msg", map[string]any{"discuss_id": numericID(targetID), "message": text}
	default:
		return "send_group_msg", map[string]any{"group_id": numericID(targetID), "message": text}
	}
}

type actionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo,omitempty"`
}

// CallAction invokes a OneBot API action over the live websocket, or over
// the HTTP API when the URL is http(s).
func (a *Adapter) CallAction(ctx context.Context, action string, params map[string]any) (json.RawMessage, error) {
	if c := a.firstConn(); c != nil {
		return a.callWebsocket(ctx, c, action, params)
	}
	if isHTTPURL(a.url) {
		return a.callHTTP(ctx, action, params)
	}
	return nil, ErrNotConnected
}

func (a *Adapter) callWebsocket(ctx context.Context, c *conn, action string, params map[string]any) (json.RawMessage, error) {
	echo := uuid.NewString()
	ch := make(chan *payload, 1)

	a.pendingMu.Lock()
	a.pending[echo] = ch
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, echo)
		a.pendingMu.Unlock()
	}()

	if err := c.writeJSON(actionRequest{Action: action, Params: params, Echo: echo}); err != nil {
		return nil, fmt.Errorf("write %s: %w", action, err)
	}

	timer := time.NewTimer(actionTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp.Data, checkResponse(action, resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%s: timed out waiting for response", action)
	}
}

func (a *Adapter) resolve(p *payload) {
	a.pendingMu.Lock()
	ch, ok := a.pending[p.Echo]
	a.pendingMu.Unlock()
	if !ok {
		a.logger.Debug("unexpected onebot action response", slog.String("echo", p.Echo))
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func (a *Adapter) callHTTP(ctx context.Context, action string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", action, err)
	}

	endpoint := strings.TrimRight(a.url, "/") + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", action, resp.StatusCode, string(respBody))
	}

	var p payload
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	return p.Data, checkResponse(action, &p)
}

func checkResponse(action string, p *payload) error {
	switch p.Status {
	case "ok", "async":
		return nil
	}
	msg := p.Wording
	if msg == "" {
		msg = rawString(p.Message)
	}
	return fmt.Errorf("%s failed: retcode=%d %s", action, p.Retcode, msg)
}

// ServeWS accepts a reverse websocket connection from the OneBot
// implementation and serves it until it closes.
func (a *Adapter) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r, nil) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if id := r.Header.Get("X-Self-ID"); id != "" {
		a.mu.Lock()
		if a.selfID == "" {
			a.selfID = id
		}
		a.mu.Unlock()
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("onebot reverse connection", slog.String("remote", r.RemoteAddr))
	err = a.serve(r.Context(), newConn(ws))
	a.logger.Info("onebot reverse connection closed", slog.String("remote", r.RemoteAddr), slog.String("error", errString(err)))
}

// ServeHTTP is the HTTP POST ingress.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !a.authorized(r, body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	a.mu.RLock()
	started := a.sink != nil
	a.mu.RUnlock()
	if !started {
		http.Error(w, "platform not started", http.StatusServiceUnavailable)
		return
	}

	a.handle(r.Context(), body)
	w.WriteHeader(http.StatusNoContent)
}

// authorized checks the access token as a bearer header, an access_token
// query parameter or, for POST bodies, an X-Signature HMAC-SHA1.
func (a *Adapter) authorized(r *http.Request, body []byte) bool {
	if a.token == "" {
		return true
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if hmac.Equal([]byte(strings.TrimPrefix(auth, "Bearer ")), []byte(a.token)) {
			return true
		}
	}
	if q := r.URL.Query().Get("access_token"); q != "" && hmac.Equal([]byte(q), []byte(a.token)) {
		return true
	}
	if sig := r.Header.Get("X-Signature"); sig != "" && body != nil {
		return hmac.Equal([]byte(sig), []byte(Sign(a.token, body)))
	}
	return false
}

// Sign computes the X-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

// Close drops every live connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed = true
	conns := a.conns
	a.conns = nil
	a.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return nil
}

func isWebsocketURL(u string) bool {
	return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://")
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ ports.Platform = (*Adapter)(nil)
