package stages

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

var (
	cqAtPattern      = regexp.MustCompile(`\[CQ:at,qq=([^,\]]+)[^\]]*\]`)
	cqReplyPattern   = regexp.MustCompile(`\[CQ:reply,id=([^,\]]+)[^\]]*\]`)
	cqSharePattern   = regexp.MustCompile(`\[CQ:share,[^\]]*title=([^,\]]+)[^\]]*\]`)
	cqGenericPattern = regexp.MustCompile(`\[CQ:([a-z_]+)(?:,[^\]]*)?\]`)
)

var cqPlaceholders = map[string]string{
	"image":  "[image]",
	"face":   "[face]",
	"record": "[voice]",
	"video":  "[video]",
	"xml":    "[xml]",
	"json":   "[json]",
	"card":   "[card]",
}

// FormatMessage renders an event's message as plain text, replacing non-text
// segments with short placeholders. Events without segments fall back to the
// raw text with platform CQ markup simplified.
func FormatMessage(ev *domain.Event) string {
	if len(ev.Message) == 0 {
		return stripCQ(ev.RawText)
	}

	var b strings.Builder
	for _, seg := range ev.Message {
		switch seg.Type {
		case domain.SegmentText:
			b.WriteString(seg.Text)
		case domain.SegmentAt:
			b.WriteString("[at:" + seg.Target + "]")
		case domain.SegmentImage:
			b.WriteString("[image]")
		case domain.SegmentFace:
			b.WriteString("[face:" + seg.ID + "]")
		case domain.SegmentRecord:
			b.WriteString("[voice]")
		case domain.SegmentVideo:
			b.WriteString("[video]")
		case domain.SegmentShare:
			title := seg.Title
			if title == "" {
				title = "link"
			}
			b.WriteString("[share:" + title + "]")
		case domain.SegmentXML:
			b.WriteString("[xml]")
		case domain.SegmentJSON:
			b.WriteString("[json]")
		case domain.SegmentReply:
			b.WriteString("[reply:" + seg.ID + "]")
		case domain.SegmentCard:
			b.WriteString("[card]")
		default:
			b.WriteString("[" + string(seg.Type) + "]")
		}
	}
	return b.String()
}

func stripCQ(raw string) string {
	if !strings.Contains(raw, "[CQ:") {
		return raw
	}
	raw = cqAtPattern.ReplaceAllString(raw, "[at:$1]")
	raw = cqReplyPattern.ReplaceAllString(raw, "[reply:$1]")
	raw = cqSharePattern.ReplaceAllString(raw, "[share:$1]")
	return cqGenericPattern.ReplaceAllStringFunc(raw, func(m string) string {
		name := cqGenericPattern.FindStringSubmatch(m)[1]
		if p, ok := cqPlaceholders[name]; ok {
			return p
		}
		return "[" + name + "]"
	})
}

// trimForLog flattens newlines and caps s at n runes.
func trimForLog(s string, n int) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// truncateRunes caps s at max runes, ending in an ellipsis when cut.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
