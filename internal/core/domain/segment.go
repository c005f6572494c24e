package domain

// SegmentType tags the variant carried by a Segment.
type SegmentType string

const (
	SegmentText   SegmentType = "text"
	SegmentAt     SegmentType = "at"
	SegmentImage  SegmentType = "image"
	SegmentFace   SegmentType = "face"
	SegmentRecord SegmentType = "record"
	SegmentVideo  SegmentType = "video"
	SegmentShare  SegmentType = "share"
	SegmentXML    SegmentType = "xml"
	SegmentJSON   SegmentType = "json"
	SegmentReply  SegmentType = "reply"
	SegmentCard   SegmentType = "card"
)

// AtAll is the mention target meaning "everyone".
const AtAll = "all"

// Segment is one typed piece of a message. Only the fields relevant to Type
// are populated.
type Segment struct {
	Type SegmentType `json:"type"`
	// Text is the body of a text segment.
	Text string `json:"text,omitempty"`
	// Target is the mentioned user id of an at segment.
	Target string `json:"target,omitempty"`
	// ID is the face id, media file id or the quoted message id of a reply.
	ID string `json:"id,omitempty"`
	// SenderID is the author of the quoted message of a reply.
	SenderID string `json:"sender_id,omitempty"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	// Data carries the raw payload of xml, json and card segments.
	Data string `json:"data,omitempty"`
}

func Text(s string) Segment { return Segment{Type: SegmentText, Text: s} }

func At(target string) Segment { return Segment{Type: SegmentAt, Target: target} }

func Image(file, url string) Segment { return Segment{Type: SegmentImage, ID: file, URL: url} }

func Face(id string) Segment { return Segment{Type: SegmentFace, ID: id} }

func Reply(messageID, senderID string) Segment {
	return Segment{Type: SegmentReply, ID: messageID, SenderID: senderID}
}

// IsAtAll reports whether the segment mentions everyone.
func (s Segment) IsAtAll() bool {
	return s.Type == SegmentAt && s.Target == AtAll
}

// Mentions reports whether the segment is an at of the given user.
func (s Segment) Mentions(id string) bool {
	return s.Type == SegmentAt && id != "" && s.Target == id
}
