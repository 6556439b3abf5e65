package messenger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks the sha256=<hex> HMAC of the raw request body.
func VerifySignature(appSecret string, body []byte, provided string) bool {
	if appSecret == "" {
		return false
	}
	sig, ok := strings.CutPrefix(provided, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// Sign produces the header value Messenger would send for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySubscription answers the GET handshake. It returns the challenge to echo
// and whether the token matched.
func VerifySubscription(verifyToken string, q url.Values) (string, bool) {
	if q.Get("hub.mode") != "subscribe" || verifyToken == "" {
		return "", false
	}
	if !hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(verifyToken)) {
		return "", false
	}
	return q.Get("hub.challenge"), true
}

type EventKind string

const (
	EventMessage  EventKind = "message"
	EventEcho     EventKind = "echo"
	EventDelivery EventKind = "delivery"
	EventRead     EventKind = "read"
)

// Event is one flattened messaging item from a webhook payload.
type Event struct {
	Kind       EventKind `json:"kind"`
	PageID     string    `json:"pageId"`
	PSID       string    `json:"psid"`
	MessageID  string    `json:"messageId,omitempty"`
	MessageIDs []string  `json:"messageIds,omitempty"`
	Text       string    `json:"text,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []messaging `json:"messaging"`
}

type messaging struct {
	Sender    party `json:"sender"`
	Recipient party `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
	Delivery *struct {
		MIDs      []string `json:"mids"`
		Watermark int64    `json:"watermark"`
	} `json:"delivery"`
	Read *struct {
		Watermark int64 `json:"watermark"`
	} `json:"read"`
}

type party struct {
	ID string `json:"id"`
}

// ParseEvents flattens a "page" webhook body. Unknown items are skipped.
func ParseEvents(body []byte) ([]Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p.Object != "page" {
		return nil, nil
	}

	var out []Event
	for _, e := range p.Entry {
		for _, m := range e.Messaging {
			ev := Event{PageID: e.ID, PSID: m.Sender.ID, OccurredAt: time.UnixMilli(m.Timestamp).UTC()}
			switch {
			case m.Message != nil && m.Message.IsEcho:
				// echoes are sent by the page; the candidate is the recipient
				ev.Kind = EventEcho
				ev.PSID = m.Recipient.ID
				ev.MessageID = m.Message.MID
			case m.Message != nil:
				ev.Kind = EventMessage
				ev.MessageID = m.Message.MID
				ev.Text = m.Message.Text
			case m.Delivery != nil:
				ev.Kind = EventDelivery
				ev.MessageIDs = m.Delivery.MIDs
			case m.Read != nil:
				ev.Kind = EventRead
			default:
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}
