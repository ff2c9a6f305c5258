package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tgrelay/internal/alerts"
	"tgrelay/internal/commands"
	"tgrelay/internal/notify"
	"tgrelay/internal/transport"
	"tgrelay/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	sendFail error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}
func (f *fakeAdapter) ClearKeyboard(ctx context.Context, ref transport.MessageRef) error { return nil }
func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendFail != nil {
		return transport.MessageRef{}, f.sendFail
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeCaller struct {
	mu         sync.Mutex
	configured bool
	fail       error
	messages   []string
}

func (f *fakeCaller) Configured() bool { return f.configured }
func (f *fakeCaller) Place(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.messages = append(f.messages, message)
	return nil
}

type fixture struct {
	srv      *Server
	adapter  *fakeAdapter
	caller   *fakeCaller
	registry *alerts.Registry
	store    *commands.Store
	http     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ad := &fakeAdapter{}
	caller := &fakeCaller{configured: true}
	registry := alerts.New(time.Minute, nil, logx.Nop())
	t.Cleanup(registry.Stop)
	store := commands.NewStore()
	notifier := notify.NewService(ad, transport.ChatTarget{ChatID: 7}, 5*time.Minute, logx.Nop())

	s := NewServer(Config{Listen: ":0", APIKey: "k3y", WebhookSecret: "tv_s3cret"},
		notifier, registry, store, caller, nil, logx.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &fixture{srv: s, adapter: ad, caller: caller, registry: registry, store: store, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, apiKey, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestNotifyRequiresAPIKey(t *testing.T) {
	f := newFixture(t)
	body := `{"title":"t","message":"m"}`

	resp, _ := f.do(t, http.MethodPost, "/notify", "", body)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key: status %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/notify", "wrong", body)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d", resp.StatusCode)
	}
	if len(f.adapter.sent) != 0 {
		t.Fatalf("unauthorized request sent a message")
	}
	if f.registry.Len() != 0 {
		t.Fatalf("unauthorized request mutated registry")
	}
}

func TestNotifyNormal(t *testing.T) {
	f := newFixture(t)
	resp, out := f.do(t, http.MethodPost, "/notify", "k3y", `{"channel":"system","title":"deploy","message":"done"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if out["status"] != "ok" {
		t.Fatalf("unexpected body: %v", out)
	}
	if _, hasID := out["alert_id"]; hasID {
		t.Fatalf("normal notify returned alert_id: %v", out)
	}
	sent := f.adapter.lastSent()
	if !strings.Contains(sent, "deploy") || !strings.Contains(sent, "[system]") {
		t.Fatalf("unexpected message: %q", sent)
	}
	if f.registry.Len() != 0 {
		t.Fatalf("normal notify created an alert")
	}
}

func TestNotifyCritical(t *testing.T) {
	f := newFixture(t)
	resp, out := f.do(t, http.MethodPost, "/notify", "k3y", `{"channel":"alert","title":"disk","message":"full","priority":"critical"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	id, _ := out["alert_id"].(string)
	if id == "" {
		t.Fatalf("missing alert_id: %v", out)
	}
	if f.registry.Len() != 1 {
		t.Fatalf("expected 1 pending alert, got %d", f.registry.Len())
	}
	sent := f.adapter.lastSent()
	if !strings.Contains(sent, "CRITICAL") {
		t.Fatalf("critical banner missing: %q", sent)
	}
	if got := f.registry.Acknowledge(id); got != alerts.OutcomeConfirmed {
		t.Fatalf("returned alert_id not acknowledgeable: %v", got)
	}
}

func TestNotifyCriticalSendFailure(t *testing.T) {
	f := newFixture(t)
	f.adapter.sendFail = errors.New("telegram is down")

	resp, _ := f.do(t, http.MethodPost, "/notify", "k3y", `{"title":"disk","message":"full","priority":"critical"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if f.registry.Len() != 0 {
		t.Fatalf("failed send left a pending alert behind")
	}
}

func TestCall(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/call?message=server+down", "k3y", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(f.caller.messages) != 1 || f.caller.messages[0] != "server down" {
		t.Fatalf("unexpected call messages: %v", f.caller.messages)
	}

	f.caller.fail = errors.New("twilio rejected")
	resp, _ = f.do(t, http.MethodPost, "/call", "k3y", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failure status %d", resp.StatusCode)
	}
}

func TestCommandsEndpoint(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Append("all", "ping", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.store.Append("gold", "stop", []string{"now"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	resp, out := f.do(t, http.MethodGet, "/commands?target=gold", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	cmds, _ := out["commands"].([]any)
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %v", out)
	}
	first, _ := cmds[0].(map[string]any)
	if first["id"].(float64) != 1 || first["action"] != "ping" {
		t.Fatalf("unexpected first command: %v", first)
	}
	if _, ok := first["ts"].(float64); !ok {
		t.Fatalf("ts missing: %v", first)
	}

	resp, out = f.do(t, http.MethodGet, "/commands?target=gold&after=1", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	cmds, _ = out["commands"].([]any)
	if len(cmds) != 1 {
		t.Fatalf("cursor not applied: %v", out)
	}

	resp, _ = f.do(t, http.MethodGet, "/commands", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing target: status %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/commands?target=gold&after=-3", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative cursor: status %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/notify", "k3y", `{"title":"a","message":"b","priority":"critical"}`)

	resp, out := f.do(t, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if out["status"] != "healthy" {
		t.Fatalf("unexpected health: %v", out)
	}
	if out["twilio_configured"] != true {
		t.Fatalf("twilio_configured: %v", out)
	}
	if out["pending_alerts"].(float64) != 1 {
		t.Fatalf("pending_alerts: %v", out)
	}
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/webhook/nope", "", "hello")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad secret: status %d", resp.StatusCode)
	}
	if len(f.adapter.sent) != 0 {
		t.Fatalf("bad secret still sent a message")
	}

	resp, _ = f.do(t, http.MethodPost, "/webhook/tv_s3cret", "", "BTC crossed 100k")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("raw text: status %d", resp.StatusCode)
	}
	sent := f.adapter.lastSent()
	if !strings.Contains(sent, "BTC crossed 100k") || !strings.Contains(sent, "TradingView Alert") {
		t.Fatalf("raw text webhook message: %q", sent)
	}

	resp, _ = f.do(t, http.MethodPost, "/webhook/tv_s3cret", "", `{"title":"Surge","message":"take profit","channel":"price","priority":"high"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json: status %d", resp.StatusCode)
	}
	sent = f.adapter.lastSent()
	if !strings.Contains(sent, "Surge") || !strings.Contains(sent, "[price]") || !strings.Contains(sent, "🔴") {
		t.Fatalf("json webhook message: %q", sent)
	}

	resp, out := f.do(t, http.MethodPost, "/webhook/tv_s3cret", "", `{"message":"margin call","priority":"critical"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("critical webhook: status %d", resp.StatusCode)
	}
	if out["alert_id"] == nil {
		t.Fatalf("critical webhook did not create an alert: %v", out)
	}
	if f.registry.Len() != 1 {
		t.Fatalf("critical webhook registry len %d", f.registry.Len())
	}
}

func TestTestEndpointNeedsNoAuth(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/test", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(f.adapter.lastSent(), "test message") {
		t.Fatalf("test message not sent: %q", f.adapter.lastSent())
	}
}
