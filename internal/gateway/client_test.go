package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leadfoundry/zapagent/internal/bus"
	"github.com/leadfoundry/zapagent/internal/config"
)

func testCreds() bus.Credentials {
	return bus.Credentials{
		InstanceID:  "inst-1",
		Token:       "apikey-abc",
		ClientToken: "client-xyz",
	}
}

func TestSendText(t *testing.T) {
	var gotPath, gotAPIKey, gotClientToken string
	var gotBody sendTextRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		gotClientToken = r.Header.Get("Client-Token")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":{"id":"wamid.123"},"status":"PENDING"}`))
	}))
	defer srv.Close()

	c := NewClient(config.GatewayConfig{BaseURL: srv.URL, SendRatePerMinute: 600})

	res, err := c.SendText(context.Background(), testCreds(), "5511999990000", "ola!")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if gotPath != "/message/sendText/inst-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAPIKey != "apikey-abc" {
		t.Errorf("apikey header = %q", gotAPIKey)
	}
	if gotClientToken != "client-xyz" {
		t.Errorf("Client-Token header = %q", gotClientToken)
	}
	if gotBody.Number != "5511999990000" || gotBody.Text != "ola!" {
		t.Errorf("body = %+v", gotBody)
	}
	if res.ProviderMessageID != "wamid.123" {
		t.Errorf("provider message id = %q", res.ProviderMessageID)
	}
	if res.Status != "PENDING" {
		t.Errorf("status = %q", res.Status)
	}
}

func TestSendTextOmitsEmptyClientToken(t *testing.T) {
	var hasHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasHeader = r.Header["Client-Token"]
		_, _ = w.Write([]byte(`{"key":{"id":"x"}}`))
	}))
	defer srv.Close()

	c := NewClient(config.GatewayConfig{BaseURL: srv.URL, SendRatePerMinute: 600})
	creds := testCreds()
	creds.ClientToken = ""

	if _, err := c.SendText(context.Background(), creds, "5511999990000", "oi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if hasHeader {
		t.Error("Client-Token header sent despite empty credential")
	}
}

func TestSendTextNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid apikey"}`))
	}))
	defer srv.Close()

	c := NewClient(config.GatewayConfig{BaseURL: srv.URL, SendRatePerMinute: 600})

	_, err := c.SendText(context.Background(), testCreds(), "5511999990000", "oi")
	if err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestSendTextCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// Burst of 1 at a very slow refill: the second call must wait, and a
	// cancelled context aborts that wait.
	c := NewClient(config.GatewayConfig{BaseURL: srv.URL, SendRatePerMinute: 1})
	if _, err := c.SendText(context.Background(), testCreds(), "5511999990000", "oi"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.SendText(ctx, testCreds(), "5511999990000", "oi"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
