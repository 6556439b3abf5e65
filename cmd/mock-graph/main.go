// Command mock-graph stands in for the Messenger Send API in local and load
// environments. Accepted sends are followed by a signed delivery webhook.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"recruit/internal/logging"
	"recruit/internal/providers/messenger"
)

type config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	PageID      string `envconfig:"MOCK_PAGE_ID" default:"mock_page"`
	AppSecret   string `envconfig:"MESSENGER_APP_SECRET" default:"mock_secret"`
	OutcomeMode string `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw string `envconfig:"MOCK_OUTCOMES" default:"ok"`
	DelayMs     int    `envconfig:"MOCK_DELAY_MS" default:"0"`
	TimeoutMs   int    `envconfig:"MOCK_TIMEOUT_DELAY_MS" default:"12000"`

	WebhookURL         string `envconfig:"MOCK_WEBHOOK_URL" default:""`
	WebhookDelayMs     int    `envconfig:"MOCK_WEBHOOK_DELAY_MS" default:"300"`
	WebhookMaxRetries  int    `envconfig:"MOCK_WEBHOOK_MAX_RETRIES" default:"5"`
	WebhookRetryBaseMs int    `envconfig:"MOCK_WEBHOOK_RETRY_BASE_MS" default:"250"`

	Outcomes     []string      `ignored:"true"`
	Delay        time.Duration `ignored:"true"`
	TimeoutDelay time.Duration `ignored:"true"`
	WebhookDelay time.Duration `ignored:"true"`
	RetryBase    time.Duration `ignored:"true"`
}

type server struct {
	cfg    config
	idx    uint64
	rng    *rand.Rand
	rngMu  sync.Mutex
	client *http.Client
	// Sleep defaults to time.Sleep; tests replace it.
	sleep func(time.Duration)
}

func main() {
	cfg := loadConfig()
	logging.Init("mock-graph", cfg.LogFormat)

	s := newServer(cfg)
	router := mux.NewRouter()
	s.register(router)

	slog.Info("mock graph listening", "port", cfg.Port, "page_id", cfg.PageID)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock graph server failed", "err", err)
		os.Exit(1)
	}
}

func newServer(cfg config) *server {
	return &server{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: &http.Client{Timeout: 5 * time.Second},
		sleep:  time.Sleep,
	}
}

func (s *server) register(r *mux.Router) {
	r.HandleFunc("/{version}/me/messages", s.handleSend).Methods(http.MethodPost)
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock graph config load failed", "err", err)
		os.Exit(1)
	}
	return normalize(cfg)
}

func normalize(cfg config) config {
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	cfg.TimeoutDelay = time.Duration(cfg.TimeoutMs) * time.Millisecond
	cfg.WebhookDelay = time.Duration(cfg.WebhookDelayMs) * time.Millisecond
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.WebhookMaxRetries < 0 {
		cfg.WebhookMaxRetries = 0
	}
	if cfg.WebhookRetryBaseMs <= 0 {
		cfg.WebhookRetryBaseMs = 250
	}
	cfg.RetryBase = time.Duration(cfg.WebhookRetryBaseMs) * time.Millisecond
	return cfg
}

type sendBody struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	MessagingType string `json:"messaging_type"`
	Tag           string `json:"tag"`
	Message       struct {
		Text string `json:"text"`
	} `json:"message"`
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("access_token") == "" {
		writeError(w, http.StatusBadRequest, 190, "Invalid OAuth access token.")
		return
	}
	var body sendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 100, "Invalid parameter")
		return
	}
	if body.Recipient.ID == "" || body.Message.Text == "" {
		writeError(w, http.StatusBadRequest, 100, "Missing required parameter")
		return
	}
	switch body.MessagingType {
	case "RESPONSE":
	case "MESSAGE_TAG":
		if body.Tag == "" {
			writeError(w, http.StatusBadRequest, 100, "Tag is required for MESSAGE_TAG")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, 100, "Invalid messaging_type")
		return
	}

	if s.cfg.Delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.cfg.Delay):
		}
	}

	o := classifyOutcome(s.nextOutcome())
	if o.timeout {
		s.sleep(s.cfg.TimeoutDelay)
		writeError(w, http.StatusGatewayTimeout, 2, "Service temporarily unavailable")
		return
	}
	if o.httpStatus != http.StatusOK {
		writeError(w, o.httpStatus, o.code, o.message)
		return
	}

	mid := fmtMID(atomic.AddUint64(&s.idx, 1) - 1)
	writeJSON(w, http.StatusOK, messenger.SendResponse{RecipientID: body.Recipient.ID, MessageID: mid})

	if s.cfg.WebhookURL != "" {
		go s.deliver(body.Recipient.ID, mid)
	}
}

// deliver posts a signed delivery receipt for mid after the configured delay.
func (s *server) deliver(psid, mid string) {
	s.sleep(s.cfg.WebhookDelay)
	now := time.Now().UnixMilli()
	payload := map[string]any{
		"object": "page",
		"entry": []any{map[string]any{
			"id":   s.cfg.PageID,
			"time": now,
			"messaging": []any{map[string]any{
				"sender":    map[string]string{"id": psid},
				"recipient": map[string]string{"id": s.cfg.PageID},
				"timestamp": now,
				"delivery":  map[string]any{"mids": []string{mid}, "watermark": now},
			}},
		}},
	}
	body, _ := json.Marshal(payload)
	if err := s.postWebhookWithRetry(context.Background(), body); err != nil {
		slog.Error("mock delivery webhook failed", "mid", mid, "err", err)
	}
}

func (s *server) postWebhookWithRetry(ctx context.Context, body []byte) error {
	sig := messenger.Sign(s.cfg.AppSecret, body)
	attempts := s.cfg.WebhookMaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(messenger.SignatureHeader, sig)

		resp, err := s.client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("webhook post failed: status=%d", resp.StatusCode)
			if !isRetryableStatus(resp.StatusCode) {
				return lastErr
			}
		} else {
			lastErr = err
		}

		if attempt < attempts-1 {
			wait := s.cfg.RetryBase * time.Duration(1<<attempt)
			slog.Warn("mock webhook post retrying", "attempt", attempt+1, "wait_ms", wait.Milliseconds(), "err", lastErr)
			s.sleep(wait)
		}
	}
	return lastErr
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

type outcome struct {
	httpStatus int
	code       int
	message    string
	timeout    bool
}

// classifyOutcome maps an outcome token such as "rate_limit" or "error:551"
// to a Graph API response.
func classifyOutcome(raw string) outcome {
	token := strings.TrimSpace(raw)
	if token == "" {
		token = "ok"
	}
	kind, codeRaw, _ := strings.Cut(token, ":")
	code, _ := strconv.Atoi(codeRaw)
	withCode := func(def int) int {
		if code != 0 {
			return code
		}
		return def
	}

	switch kind {
	case "ok", "success":
		return outcome{httpStatus: http.StatusOK}
	case "rate_limit", "429":
		return outcome{httpStatus: http.StatusBadRequest, code: withCode(613), message: "Calls to this api have exceeded the rate limit."}
	case "window_closed":
		return outcome{httpStatus: http.StatusBadRequest, code: withCode(10), message: "This message is sent outside of allowed window."}
	case "user_unavailable":
		return outcome{httpStatus: http.StatusBadRequest, code: withCode(551), message: "This person isn't available right now."}
	case "bad_request", "400":
		return outcome{httpStatus: http.StatusBadRequest, code: withCode(100), message: "Invalid parameter"}
	case "server_error", "500":
		return outcome{httpStatus: http.StatusInternalServerError, code: withCode(2), message: "Service temporarily unavailable"}
	case "timeout":
		return outcome{timeout: true}
	default:
		return outcome{httpStatus: http.StatusInternalServerError, code: withCode(1), message: "mock error: " + kind}
	}
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]any{"error": messenger.APIError{
		Message: msg, Type: "OAuthException", Code: code, FBTraceID: "mock",
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fmtMID(i uint64) string {
	return fmt.Sprintf("m_mock%08d", i)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"ok"}
	}
	return out
}
