package onebot

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

func TestParseEvent_Messages(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSubtype domain.Subtype
		wantGroup   string
		wantSender  string
		wantSegs    []domain.Segment
		wantSession string
	}{
		{
			name: "group array message",
			body: `{"post_type":"message","message_type":"group","time":1700000000,"self_id":10001,
				"user_id":42,"group_id":777,"message_id":5,
				"message":[{"type":"at","data":{"qq":"10001"}},{"type":"text","data":{"text":" hi"}}],
				"raw_message":"[CQ:at,qq=10001] hi","sender":{"nickname":"neko","card":"Neko"}}`,
			wantSubtype: domain.SubtypeGroup,
			wantGroup:   "777",
			wantSender:  "42",
			wantSegs:    []domain.Segment{domain.At("10001"), domain.Text(" hi")},
			wantSession: "group:777",
		},
		{
			name: "private string message",
			body: `{"post_type":"message","message_type":"private","self_id":"10001","user_id":"42",
				"message":"[CQ:face,id=14]hello &#91;x&#93;"}`,
			wantSubtype: domain.SubtypePrivate,
			wantSender:  "42",
			wantSegs:    []domain.Segment{domain.Face("14"), domain.Text("hello [x]")},
			wantSession: "private:42",
		},
		{
			name: "discuss message",
			body: `{"post_type":"message","message_type":"discuss","self_id":1,"user_id":2,"discuss_id":3,
				"message":[{"type":"reply","data":{"id":"99","qq":1}},{"type":"text","data":{"text":"yo"}}]}`,
			wantSubtype: domain.SubtypeDiscuss,
			wantGroup:   "3",
			wantSender:  "2",
			wantSegs:    []domain.Segment{domain.Reply("99", "1"), domain.Text("yo")},
			wantSession: "discuss:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent("qq", []byte(tt.body))
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			if ev.Kind != domain.KindMessage || ev.Subtype != tt.wantSubtype {
				t.Errorf("kind/subtype = %s/%s", ev.Kind, ev.Subtype)
			}
			if ev.GroupID != tt.wantGroup || ev.SenderID != tt.wantSender {
				t.Errorf("group/sender = %q/%q", ev.GroupID, ev.SenderID)
			}
			if ev.PlatformID != "qq" {
				t.Errorf("PlatformID = %q", ev.PlatformID)
			}
			if diff := cmp.Diff(tt.wantSegs, ev.Message); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
			if ev.SessionID() != tt.wantSession {
				t.Errorf("SessionID() = %q, want %q", ev.SessionID(), tt.wantSession)
			}
		})
	}
}

func TestParseEvent_SenderCardWins(t *testing.T) {
	ev, err := ParseEvent("qq", []byte(`{"post_type":"message","message_type":"group","user_id":1,"group_id":2,
		"message":"x","sender":{"nickname":"nick","card":"card"}}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.SenderName != "card" {
		t.Errorf("SenderName = %q, want card", ev.SenderName)
	}
}

func TestParseEvent_NoticeAndRequest(t *testing.T) {
	notice, err := ParseEvent("qq", []byte(`{"post_type":"notice","notice_type":"group_increase","group_id":5,"user_id":6}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if notice.Kind != domain.KindNotice || notice.Detail != "group_increase" || notice.Subtype != domain.SubtypeGroup {
		t.Errorf("unexpected notice: %+v", notice)
	}

	req, err := ParseEvent("qq", []byte(`{"post_type":"request","request_type":"friend","user_id":6,"comment":"add me"}`))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if req.Kind != domain.KindRequest || req.Detail != "friend" || req.Subtype != domain.SubtypePrivate || req.RawText != "add me" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestParseEvent_Ignored(t *testing.T) {
	for _, body := range []string{
		`{"post_type":"meta_event","meta_event_type":"heartbeat"}`,
		`{"post_type":"message_sent","message_type":"group","message":"self"}`,
	} {
		ev, err := ParseEvent("qq", []byte(body))
		if err != nil || ev != nil {
			t.Errorf("ParseEvent(%s) = %v, %v; want nil, nil", body, ev, err)
		}
	}

	if _, err := ParseEvent("qq", []byte(`{`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseCQ(t *testing.T) {
	tests := []struct {
		in   string
		want []domain.Segment
	}{
		{"plain", []domain.Segment{domain.Text("plain")}},
		{"[CQ:at,qq=all] wake", []domain.Segment{domain.At("all"), domain.Text(" wake")}},
		{
			"[CQ:share,url=https://x.test/a&#44;b,title=News]",
			[]domain.Segment{{Type: domain.SegmentShare, URL: "https://x.test/a,b", Title: "News"}},
		},
		{"broken [CQ:at,qq=1", []domain.Segment{domain.Text("broken "), domain.Text("[CQ:at,qq=1")}},
		{"[CQ:image,file=a.png,url=http://img]", []domain.Segment{domain.Image("a.png", "http://img")}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseCQ(tt.in)); diff != "" {
				t.Errorf("ParseCQ mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderCQRoundTrip(t *testing.T) {
	segs := []domain.Segment{domain.At("1"), domain.Text(" a[b]&c"), domain.Face("2")}
	if diff := cmp.Diff(segs, ParseCQ(renderCQ(segs))); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
