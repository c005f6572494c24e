// Package domain holds the canonical event, message and error types shared by
// the pipeline, the platform adapters and the plugins.
package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind is the top-level category of an inbound event.
type EventKind string

const (
	KindMessage EventKind = "message"
	KindNotice  EventKind = "notice"
	KindRequest EventKind = "request"
)

// Subtype identifies the conversation scope an event belongs to.
type Subtype string

const (
	SubtypePrivate Subtype = "private"
	SubtypeGroup   Subtype = "group"
	SubtypeDiscuss Subtype = "discuss"
)

// Event is one inbound occurrence from a chat platform plus the control data
// the pipeline attaches while processing it.
type Event struct {
	ID      string
	Kind    EventKind
	Subtype Subtype
	// Detail is the notice or request type, e.g. "group_increase" or "friend_add".
	Detail     string
	PlatformID string
	SelfID     string
	SenderID   string
	SenderName string
	GroupID    string
	GroupName  string
	Message    []Segment
	RawText    string
	Time       time.Time

	mu       sync.Mutex
	stopper  *Stopper
	response *Response
}

// NewMessageEvent builds a message event from plain text.
func NewMessageEvent(platformID string, subtype Subtype, senderID, groupID, text string) *Event {
	return &Event{
		ID:         "evt_" + uuid.New().String(),
		Kind:       KindMessage,
		Subtype:    subtype,
		PlatformID: platformID,
		SenderID:   senderID,
		GroupID:    groupID,
		Message:    []Segment{Text(text)},
		RawText:    text,
		Time:       time.Now(),
	}
}

// EnsureStopper attaches a control token if none is attached yet and returns
// the event's token. It is safe to call any number of times.
func (e *Event) EnsureStopper() *Stopper {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopper == nil {
		e.stopper = &Stopper{}
	}
	return e.stopper
}

// Stopper returns the attached control token, or nil before pipeline entry.
func (e *Event) Stopper() *Stopper {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopper
}

// Stop sets the stop flag on the event's control token.
func (e *Event) Stop(reason string) {
	e.EnsureStopper().Stop(reason)
}

// IsStopped reports whether any stage stopped the event.
func (e *Event) IsStopped() bool {
	s := e.Stopper()
	return s != nil && s.Stopped()
}

// StopReason returns the reason recorded by the first Stop call.
func (e *Event) StopReason() string {
	s := e.Stopper()
	if s == nil {
		return ""
	}
	return s.Reason()
}

// SetResponse replaces the pending response text.
func (e *Event) SetResponse(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.response = &Response{Text: text}
}

// Response returns a copy of the pending response, or nil.
func (e *Event) Response() *Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.response == nil {
		return nil
	}
	r := *e.response
	return &r
}

// MarkDelivered flags the pending response as sent.
func (e *Event) MarkDelivered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.response != nil {
		e.response.Delivered = true
	}
}

// IsPrivate reports whether the event came from a one-to-one chat.
func (e *Event) IsPrivate() bool {
	return e.Subtype == SubtypePrivate
}

// SessionID returns "{scope}:{id}" where id is the user for private chats and
// the group otherwise.
func (e *Event) SessionID() string {
	scope := e.Subtype
	if scope == "" {
		scope = SubtypePrivate
	}
	if scope == SubtypePrivate {
		return string(scope) + ":" + e.SenderID
	}
	return string(scope) + ":" + e.GroupID
}

// ConversationID keys the LLM context of one user within one group.
func (e *Event) ConversationID() string {
	group := e.GroupID
	if group == "" || e.IsPrivate() {
		group = "private"
	}
	return group + "_" + e.SenderID
}

// TargetID is where replies go: the user for private chats, the group otherwise.
func (e *Event) TargetID() string {
	if e.IsPrivate() || e.GroupID == "" {
		return e.SenderID
	}
	return e.GroupID
}

// PlainText concatenates the text segments of the message.
func (e *Event) PlainText() string {
	var b strings.Builder
	for _, seg := range e.Message {
		if seg.Type == SegmentText {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// Describe returns a short description for log lines.
func (e *Event) Describe() string {
	switch e.Kind {
	case KindMessage:
		return fmt.Sprintf("%s message from %s in %s", e.Subtype, e.SenderID, e.SessionID())
	default:
		return fmt.Sprintf("%s %s from %s", e.Kind, e.Detail, e.SenderID)
	}
}

// Response is the reply a stage left for Respond to deliver.
type Response struct {
	Text      string
	Delivered bool
}

// Stopper is the per-event control token that short-circuits the stage chain.
type Stopper struct {
	mu      sync.Mutex
	stopped bool
	reason  string
}

// Stop sets the flag. The first reason is kept.
func (s *Stopper) Stop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.reason = reason
}

// Stopped reports whether Stop was called.
func (s *Stopper) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Reason returns the stop reason.
func (s *Stopper) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Reset clears the flag. Only administrative tooling calls this.
func (s *Stopper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.reason = ""
}
