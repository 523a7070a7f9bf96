// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package botapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestServer serves a minimal Bot API: getMe succeeds for
// "good-token", rejects everything else; close and sendMessage accept
// any started session.
func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		parts := strings.SplitN(strings.TrimPrefix(request.URL.Path, "/"), "/", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "bot") {
			t.Errorf("unexpected path: %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		token := strings.TrimPrefix(parts[0], "bot")
		method := parts[1]
		calls = append(calls, method)

		writer.Header().Set("Content-Type", "application/json")

		if token != "good-token" {
			writer.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(writer).Encode(map[string]any{
				"ok": false, "error_code": 401, "description": "Unauthorized",
			})
			return
		}

		switch method {
		case "getMe":
			json.NewEncoder(writer).Encode(map[string]any{
				"ok": true,
				"result": map[string]any{
					"id": 42, "username": "streamfleet_bot", "first_name": "Streamfleet",
				},
			})
		case "close", "sendMessage":
			json.NewEncoder(writer).Encode(map[string]any{"ok": true, "result": true})
		default:
			json.NewEncoder(writer).Encode(map[string]any{
				"ok": false, "error_code": 404, "description": "Not Found",
			})
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(t *testing.T, server *httptest.Server, token string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:  server.URL,
		BotToken: token,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{BotToken: "t"}); err == nil {
		t.Error("NewClient accepted empty BaseURL")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://localhost"}); err == nil {
		t.Error("NewClient accepted empty BotToken")
	}
}

func TestStartAndStop(t *testing.T) {
	server, calls := newTestServer(t)
	client := newTestClient(t, server, "good-token")
	ctx := context.Background()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !client.Started() {
		t.Error("Started() = false after Start")
	}
	if me := client.Me(); me.ID != 42 || me.Username != "streamfleet_bot" {
		t.Errorf("Me() = %+v, want id 42 / streamfleet_bot", me)
	}

	// Double start must fail without touching the API again.
	before := len(*calls)
	if err := client.Start(ctx); err == nil {
		t.Error("second Start succeeded")
	}
	if len(*calls) != before {
		t.Error("second Start reached the API")
	}

	if err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if client.Started() {
		t.Error("Started() = true after Stop")
	}
}

func TestStartRejectedToken(t *testing.T) {
	server, _ := newTestServer(t)
	client := newTestClient(t, server, "bad-token")

	err := client.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded with rejected token")
	}
	if !IsAPIError(err, 401) {
		t.Errorf("error = %v, want APIError with code 401", err)
	}
	if client.Started() {
		t.Error("client marked started after failed Start")
	}
}

func TestStopWithoutStart(t *testing.T) {
	server, _ := newTestServer(t)
	client := newTestClient(t, server, "good-token")

	if err := client.Stop(context.Background()); err == nil {
		t.Fatal("Stop succeeded on a client that was never started")
	}
}

func TestSendMessage(t *testing.T) {
	server, calls := newTestServer(t)
	client := newTestClient(t, server, "good-token")
	ctx := context.Background()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := client.SendMessage(ctx, -100123, "pool started"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	found := false
	for _, call := range *calls {
		if call == "sendMessage" {
			found = true
		}
	}
	if !found {
		t.Error("sendMessage never reached the API")
	}
}

func TestNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html>proxy error</html>"))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL, BotToken: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded on a non-JSON error response")
	}
}

func TestTransportErrorsRedactToken(t *testing.T) {
	// Port 1 is never listening; every request fails in the transport,
	// which reproduces the full request URL (token included) in its
	// error.
	const token = "123456:AAE-very-secret-value"
	client, err := NewClient(ClientConfig{
		BaseURL:  "http://127.0.0.1:1",
		BotToken: token,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	err = client.Start(ctx)
	if err == nil {
		t.Fatal("Start succeeded against an unreachable endpoint")
	}
	if strings.Contains(err.Error(), token) {
		t.Errorf("Start error leaks the bot token: %v", err)
	}
	if !strings.Contains(err.Error(), "[redacted]") {
		t.Errorf("Start error lost the redaction marker: %v", err)
	}

	err = client.SendMessage(ctx, -100123, "hello")
	if err == nil {
		t.Fatal("SendMessage succeeded against an unreachable endpoint")
	}
	if strings.Contains(err.Error(), token) {
		t.Errorf("SendMessage error leaks the bot token: %v", err)
	}
}
