package onebot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// ID accepts OneBot ids sent either as JSON numbers or strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

// payload is the subset of a OneBot v11 post (event or action response) the
// adapter reads.
type payload struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	NoticeType    string          `json:"notice_type"`
	RequestType   string          `json:"request_type"`
	MetaEventType string          `json:"meta_event_type"`
	SubType       string          `json:"sub_type"`
	Time          int64           `json:"time"`
	SelfID        ID              `json:"self_id"`
	UserID        ID              `json:"user_id"`
	GroupID       ID              `json:"group_id"`
	DiscussID     ID              `json:"discuss_id"`
	MessageID     ID              `json:"message_id"`
	Message       json.RawMessage `json:"message"`
	RawMessage    string          `json:"raw_message"`
	Comment       string          `json:"comment"`
	Sender        struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`

	// Action responses
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Echo    string          `json:"echo"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
}

func (p *payload) isActionResponse() bool {
	return p.PostType == "" && p.Echo != ""
}

// ParseEvent converts a OneBot v11 post into an event. Meta events
// (heartbeat, lifecycle) and unknown post types return nil without error.
func ParseEvent(platformID string, data []byte) (*domain.Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode onebot event: %w", err)
	}
	return p.toEvent(platformID)
}

func (p *payload) toEvent(platformID string) (*domain.Event, error) {
	ev := &domain.Event{
		ID:         "evt_" + string(p.MessageID),
		PlatformID: platformID,
		SelfID:     string(p.SelfID),
		SenderID:   string(p.UserID),
		SenderName: p.Sender.Nickname,
		GroupID:    string(p.GroupID),
		Time:       time.Unix(p.Time, 0),
	}
	if p.Time == 0 {
		ev.Time = time.Now()
	}
	if p.Sender.Card != "" {
		ev.SenderName = p.Sender.Card
	}

	switch p.PostType {
	case "message":
		ev.Kind = domain.KindMessage
		switch p.MessageType {
		case "private":
			ev.Subtype = domain.SubtypePrivate
			ev.GroupID = ""
		case "discuss":
			ev.Subtype = domain.SubtypeDiscuss
			ev.GroupID = string(p.DiscussID)
		default:
			ev.Subtype = domain.SubtypeGroup
		}
		segs, err := parseMessage(p.Message)
		if err != nil {
			return nil, err
		}
		ev.Message = segs
		ev.RawText = p.RawMessage
		if ev.RawText == "" {
			ev.RawText = renderCQ(segs)
		}
	case "notice":
		ev.Kind = domain.KindNotice
		ev.Detail = p.NoticeType
		ev.Subtype = scopeOf(ev.GroupID)
	case "request":
		ev.Kind = domain.KindRequest
		ev.Detail = p.RequestType
		ev.Subtype = scopeOf(ev.GroupID)
		ev.RawText = p.Comment
	default:
		return nil, nil
	}

	if p.MessageID == "" {
		ev.ID = fmt.Sprintf("evt_%s_%s_%d", p.PostType, p.UserID, ev.Time.UnixNano())
	}
	return ev, nil
}

func scopeOf(groupID string) domain.Subtype {
	if groupID == "" {
		return domain.SubtypePrivate
	}
	return domain.SubtypeGroup
}

type wireSegment struct {
	Type string                     `json:"type"`
	Data map[string]json.RawMessage `json:"data"`
}

// parseMessage accepts both the array format and the CQ string format.
func parseMessage(raw json.RawMessage) ([]domain.Segment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode message string: %w", err)
		}
		return ParseCQ(s), nil
	}

	var wire []wireSegment
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode message segments: %w", err)
	}
	segs := make([]domain.Segment, 0, len(wire))
	for _, w := range wire {
		fields := make(map[string]string, len(w.Data))
		for k, v := range w.Data {
			fields[k] = rawString(v)
		}
		segs = append(segs, toSegment(w.Type, fields))
	}
	return segs, nil
}

func rawString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	if string(v) == "null" {
		return ""
	}
	return string(v)
}

func toSegment(typ string, f map[string]string) domain.Segment {
	switch typ {
	case "text":
		return domain.Text(f["text"])
	case "at":
		return domain.At(f["qq"])
	case "image":
		return domain.Image(f["file"], f["url"])
	case "face":
		return domain.Face(f["id"])
	case "record":
		return domain.Segment{Type: domain.SegmentRecord, ID: f["file"], URL: f["url"]}
	case "video":
		return domain.Segment{Type: domain.SegmentVideo, ID: f["file"], URL: f["url"]}
	case "share":
		return domain.Segment{Type: domain.SegmentShare, Title: f["title"], URL: f["url"]}
	case "xml":
		return domain.Segment{Type: domain.SegmentXML, Data: f["data"]}
	case "json":
		return domain.Segment{Type: domain.SegmentJSON, Data: f["data"]}
	case "reply":
		// Some implementations include the quoted author as qq.
		return domain.Reply(f["id"], f["qq"])
	case "contact", "card":
		return domain.Segment{Type: domain.SegmentCard, ID: f["id"], Data: f["type"]}
	default:
		return domain.Segment{Type: domain.SegmentType(typ), Data: encodeParams(f)}
	}
}

// ParseCQ splits a CQ-coded string into segments.
func ParseCQ(s string) []domain.Segment {
	var segs []domain.Segment
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			segs = append(segs, domain.Text(unescapeText(s)))
			break
		}
		if start > 0 {
			segs = append(segs, domain.Text(unescapeText(s[:start])))
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			segs = append(segs, domain.Text(unescapeText(s[start:])))
			break
		}
		code := s[start+len("[CQ:") : start+end]
		s = s[start+end+1:]

		typ, rest, _ := strings.Cut(code, ",")
		fields := make(map[string]string)
		if rest != "" {
			for _, kv := range strings.Split(rest, ",") {
				k, v, _ := strings.Cut(kv, "=")
				fields[k] = unescapeParam(v)
			}
		}
		segs = append(segs, toSegment(typ, fields))
	}
	return segs
}

// renderCQ is the inverse of ParseCQ for the segment types we understand.
func renderCQ(segs []domain.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		switch seg.Type {
		case domain.SegmentText:
			b.WriteString(escapeText(seg.Text))
		case domain.SegmentAt:
			b.WriteString("[CQ:at,qq=" + escapeParam(seg.Target) + "]")
		case domain.SegmentFace:
			b.WriteString("[CQ:face,id=" + escapeParam(seg.ID) + "]")
		case domain.SegmentReply:
			b.WriteString("[CQ:reply,id=" + escapeParam(seg.ID) + "]")
		case domain.SegmentImage:
			b.WriteString("[CQ:image,file=" + escapeParam(seg.ID) + "]")
		default:
			b.WriteString("[CQ:" + string(seg.Type) + "]")
		}
	}
	return b.String()
}

var (
	textUnescaper  = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")
	textEscaper    = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	paramUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")
	paramEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
)

func unescapeText(s string) string  { return textUnescaper.Replace(s) }
func escapeText(s string) string    { return textEscaper.Replace(s) }
func unescapeParam(s string) string { return paramUnescaper.Replace(s) }
func escapeParam(s string) string   { return paramEscaper.Replace(s) }

func encodeParams(f map[string]string) string {
	if len(f) == 0 {
		return ""
	}
	b, _ := json.Marshal(f)
	return string(b)
}

// numericID sends numeric ids as numbers, which some implementations require.
func numericID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
