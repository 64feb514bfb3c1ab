package twiliowhatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("down")
	if err := mock.SendMessage(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Messages()) != 0 {
		t.Error("failed send should not be recorded")
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+15550001111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("expected prefixed from number, got %s", c.fromWhats)
	}
}

func TestSplitBody(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"exact", "hello", 5, []string{"hello"}},
		{"hard cut", "abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"prefers newline", "ab\ncdef\ngh", 6, []string{"ab", "cdef", "gh"}},
		{"multibyte", "ééééé", 2, []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitBody(tt.body, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("SplitBody(%q, %d) = %q, want %q", tt.body, tt.limit, got, tt.want)
			}
		})
	}
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func webhookRequest(form url.Values, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		r.Header.Set(signatureHeader, signature)
	}
	return r
}

func TestParseInbound(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"  hi there "}, "MessageSid": {"SM1"}}

	msg, err := ParseInbound(webhookRequest(form, ""), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.From != "+15551234567" || msg.Body != "hi there" || msg.MessageSID != "SM1" {
		t.Errorf("unexpected message: %+v", msg)
	}

	_, err = ParseInbound(webhookRequest(url.Values{"Body": {"x"}}, ""), nil)
	if !errors.Is(err, ErrMissingSender) {
		t.Errorf("expected missing sender, got %v", err)
	}
}

func TestParseInbound_Signature(t *testing.T) {
	const token = "secret-token"
	const base = "https://agents.example.com"
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}}
	v := NewWebhookValidator(token, base+"/")

	good := sign(token, base+"/twilio/webhook", form)
	if _, err := ParseInbound(webhookRequest(form, good), v); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	if _, err := ParseInbound(webhookRequest(form, "bogus"), v); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected invalid signature, got %v", err)
	}
}
