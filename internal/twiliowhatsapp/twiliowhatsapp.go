// Package twiliowhatsapp connects the agent-building dialogue to WhatsApp through the Twilio API.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MaxBodyLength is the longest WhatsApp message body Twilio accepts.
const MaxBodyLength = 1600

const (
	whatsappPrefix  = "whatsapp:"
	signatureHeader = "X-Twilio-Signature"
)

var (
	// ErrInvalidSignature is returned when a webhook request fails signature validation.
	ErrInvalidSignature = errors.New("invalid twilio signature")
	// ErrMissingSender is returned when a webhook request has no From field.
	ErrMissingSender = errors.New("missing sender")
)

// Sender delivers a text reply to a WhatsApp user.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

var _ Sender = (*Client)(nil)

// NewClient creates a Twilio client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, fromWhats: withPrefix(cfg.FromWhats)}, nil
}

// SendMessage sends a WhatsApp message, split into several when longer than MaxBodyLength.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	for i, part := range SplitBody(body, MaxBodyLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(withPrefix(to))
		params.SetFrom(c.fromWhats)
		params.SetBody(part)

		if _, err := c.client.Api.CreateMessage(params); err != nil {
			slog.Error("Twilio SendMessage failed", "to", to, "part", i, "error", err)
			return fmt.Errorf("failed to send message to %s: %w", to, err)
		}
	}
	slog.Debug("Twilio message sent", "to", to, "length", len(body))
	return nil
}

// SplitBody breaks body into chunks of at most limit runes, preferring line breaks.
func SplitBody(body string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(body) <= limit {
		return []string{body}
	}
	var parts []string
	for utf8.RuneCountInString(body) > limit {
		cut := byteOffset(body, limit)
		if nl := strings.LastIndex(body[:cut], "\n"); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, strings.TrimRight(body[:cut], "\n"))
		body = body[cut:]
	}
	if body != "" {
		parts = append(parts, body)
	}
	return parts
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return i
}

// InboundMessage is a WhatsApp message delivered to the webhook.
type InboundMessage struct {
	From       string // phone number without the whatsapp: prefix
	Body       string
	MessageSID string
}

// WebhookValidator checks the X-Twilio-Signature header of webhook requests.
type WebhookValidator struct {
	validator twilioclient.RequestValidator
	publicURL string
}

// NewWebhookValidator creates a validator for requests signed with authToken.
// publicURL is the externally visible base URL Twilio posts to.
func NewWebhookValidator(authToken, publicURL string) *WebhookValidator {
	return &WebhookValidator{
		validator: twilioclient.NewRequestValidator(authToken),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Validate reports whether r carries a valid signature. r.ParseForm must have been called.
func (v *WebhookValidator) Validate(r *http.Request) bool {
	params := make(map[string]string, len(r.PostForm))
	for k, vals := range r.PostForm {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	url := v.publicURL + r.URL.RequestURI()
	return v.validator.Validate(url, params, r.Header.Get(signatureHeader))
}

// ParseInbound reads a Twilio webhook form. When validator is non-nil the signature is checked.
func ParseInbound(r *http.Request, validator *WebhookValidator) (InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}, fmt.Errorf("failed to parse webhook form: %w", err)
	}
	if validator != nil && !validator.Validate(r) {
		return InboundMessage{}, ErrInvalidSignature
	}
	msg := InboundMessage{
		From:       strings.TrimPrefix(r.PostForm.Get("From"), whatsappPrefix),
		Body:       strings.TrimSpace(r.PostForm.Get("Body")),
		MessageSID: r.PostForm.Get("MessageSid"),
	}
	if msg.From == "" {
		return InboundMessage{}, ErrMissingSender
	}
	return msg, nil
}

func withPrefix(number string) string {
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

// MockClient records sent messages instead of calling Twilio.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Err          error
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a copy of the captured messages.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
