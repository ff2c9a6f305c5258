package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tgrelay/pkg/logx"
)

func testConfig() Config {
	return Config{AccountSID: "AC123", AuthToken: "secret", From: "+15550001", To: "+15550002"}
}

func TestConfigured(t *testing.T) {
	if New(Config{}, logx.Nop()).Configured() {
		t.Fatal("empty config reported configured")
	}
	cfg := testConfig()
	cfg.To = ""
	if New(cfg, logx.Nop()).Configured() {
		t.Fatal("config without To reported configured")
	}
	if !New(testConfig(), logx.Nop()).Configured() {
		t.Fatal("full config reported unconfigured")
	}
}

func TestPlaceNotConfigured(t *testing.T) {
	c := New(Config{}, logx.Nop())
	if err := c.Place(context.Background(), "disk full"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPlaceSendsCallRequest(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotTwiml string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotTwiml = r.PostFormValue("Twiml")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA42"}`))
	}))
	defer srv.Close()

	c := New(testConfig(), logx.Nop())
	c.baseURL = srv.URL
	if err := c.Place(context.Background(), "disk <80%> full"); err != nil {
		t.Fatalf("place: %v", err)
	}

	if gotPath != "/2010-04-01/Accounts/AC123/Calls.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("unexpected basic auth %q/%q", gotUser, gotPass)
	}
	if gotTo != "+15550002" || gotFrom != "+15550001" {
		t.Fatalf("unexpected numbers to=%q from=%q", gotTo, gotFrom)
	}
	if !strings.Contains(gotTwiml, "disk &lt;80%&gt; full") {
		t.Fatalf("message not escaped into TwiML: %q", gotTwiml)
	}
	if strings.Count(gotTwiml, "disk") != 2 {
		t.Fatalf("expected message spoken twice, got %q", gotTwiml)
	}
}

func TestPlaceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(testConfig(), logx.Nop())
	c.baseURL = srv.URL
	err := c.Place(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "http=400") {
		t.Fatalf("expected http=400 error, got %v", err)
	}
}
