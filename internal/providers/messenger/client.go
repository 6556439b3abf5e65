package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const Provider = "messenger"

type Client struct {
	HTTP *http.Client

	BaseURL    string
	APIVersion string
}

type SendRequest struct {
	PageAccessToken string
	RecipientPSID   string
	Text            string
	MessagingType   string
	Tag             string
}

type SendResponse struct {
	RecipientID string    `json:"recipient_id"`
	MessageID   string    `json:"message_id"`
	Error       *APIError `json:"error,omitempty"`
}

// APIError is the Graph API error envelope.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string { return e.Message }

type sendBody struct {
	Recipient     recipient `json:"recipient"`
	MessagingType string    `json:"messaging_type"`
	Tag           string    `json:"tag,omitempty"`
	Message       message   `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendResponse, int, []byte, error) {
	body, err := json.Marshal(sendBody{
		Recipient:     recipient{ID: req.RecipientPSID},
		MessagingType: req.MessagingType,
		Tag:           req.Tag,
		Message:       message{Text: req.Text},
	})
	if err != nil {
		return SendResponse{}, 0, nil, err
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	version := c.APIVersion
	if version == "" {
		version = "v19.0"
	}
	endpoint := baseURL + "/" + version + "/me/messages?access_token=" + url.QueryEscape(req.PageAccessToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return out, resp.StatusCode, b, out.Error
		}
		return out, resp.StatusCode, b, errors.New("messenger send failed")
	}
	return out, resp.StatusCode, b, nil
}

// Graph API codes that signal throttling or a temporary backend problem.
var retryableCodes = map[int]bool{
	1:    true, // unknown error, possibly temporary
	2:    true, // service temporarily unavailable
	4:    true, // application request limit
	17:   true, // user request limit
	32:   true, // page request limit
	613:  true, // rate limit
	1200: true, // temporary send failure
}

// Retry decision for transient errors
func ShouldRetry(err error, httpStatus int) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
		var ae *APIError
		if errors.As(err, &ae) && retryableCodes[ae.Code] {
			return true
		}
	}
	if httpStatus == http.StatusTooManyRequests || httpStatus == http.StatusRequestTimeout {
		return true
	}
	if httpStatus >= 500 && httpStatus <= 599 {
		return true
	}
	return false
}

func Backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
