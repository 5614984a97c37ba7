package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mallsoft/peyk/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSandboxSendAndCheck(t *testing.T) {
	gw := NewSandbox(0, nil)
	ctx := context.Background()

	res, err := gw.Send(ctx, "+989121111111", "hello", "1000")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.NotEmpty(t, res.MessageID)

	status, err := gw.CheckDelivery(ctx, res.MessageID)
	require.NoError(t, err)
	require.True(t, status.Delivered)

	status, err = gw.CheckDelivery(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, status.Delivered)
}

func TestSandboxFailureRate(t *testing.T) {
	gw := NewSandbox(1.0, nil)

	res, err := gw.Send(context.Background(), "+989121111111", "hello", "1000")
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.NotEmpty(t, res.Reason)
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := config.GatewayConfig{Provider: config.ProviderSandbox}
	gw, err := New(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &Sandbox{}, gw)

	_, err = New(config.GatewayConfig{Provider: "carrier-pigeon"}, nil)
	require.Error(t, err)
}

func TestKavenegarSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "+989121111111", r.Form.Get("receptor"))
		require.Equal(t, "hello", r.Form.Get("message"))

		json.NewEncoder(w).Encode(map[string]any{
			"return":  map[string]any{"status": 200, "message": "ok"},
			"entries": []map[string]any{{"messageid": 4242, "status": 1, "cost": 550}},
		})
	}))
	defer srv.Close()

	gw := NewKavenegar(config.GatewayConfig{
		APIKey:       "test-key",
		SenderNumber: "10008000",
		BaseURL:      srv.URL,
		Timeout:      5 * time.Second,
	}, discardLogger())

	res, err := gw.Send(context.Background(), "+989121111111", "hello", "")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, "4242", res.MessageID)
	require.Equal(t, int64(550), res.Cost)
}

func TestKavenegarRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"return": map[string]any{"status": 411, "message": "invalid receptor"},
		})
	}))
	defer srv.Close()

	gw := NewKavenegar(config.GatewayConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second}, discardLogger())

	res, err := gw.Send(context.Background(), "bogus", "hello", "1000")
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, "invalid receptor", res.Reason)
}

func TestKavenegarAuthFailureIsSystemic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"return": map[string]any{"status": 401, "message": "bad api key"},
		})
	}))
	defer srv.Close()

	gw := NewKavenegar(config.GatewayConfig{APIKey: "bad", BaseURL: srv.URL, Timeout: 5 * time.Second}, discardLogger())

	_, err := gw.Send(context.Background(), "+989121111111", "hello", "1000")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestKavenegarCheckDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"return":  map[string]any{"status": 200, "message": "ok"},
			"entries": []map[string]any{{"messageid": 4242, "status": 4}},
		})
	}))
	defer srv.Close()

	gw := NewKavenegar(config.GatewayConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second}, discardLogger())

	status, err := gw.CheckDelivery(context.Background(), "4242")
	require.NoError(t, err)
	require.True(t, status.Delivered)
}

func TestKavenegarUnreachable(t *testing.T) {
	gw := NewKavenegar(config.GatewayConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, discardLogger())

	_, err := gw.Send(context.Background(), "+989121111111", "hello", "1000")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSMSIRSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var req smsirSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"+989121111111"}, req.Mobiles)

		json.NewEncoder(w).Encode(map[string]any{
			"status":  1,
			"message": "ok",
			"data":    map[string]any{"messageIds": []int64{77}, "cost": 480.0},
		})
	}))
	defer srv.Close()

	gw := NewSMSIR(config.GatewayConfig{
		APIKey:       "test-key",
		SenderNumber: "3000",
		BaseURL:      srv.URL,
		Timeout:      5 * time.Second,
	}, discardLogger())

	res, err := gw.Send(context.Background(), "+989121111111", "hello", "")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, "77", res.MessageID)
	require.Equal(t, int64(480), res.Cost)
}
