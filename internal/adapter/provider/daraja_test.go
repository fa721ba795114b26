package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/port"
)

func newSandbox(t *testing.T, pushStatus int, pushBody map[string]string) (*httptest.Server, *int) {
	t.Helper()

	pushCalls := 0
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "sandbox-token",
			"expires_in":   "3599",
		})
	})

	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		pushCalls++
		if r.Header.Get("Authorization") != "Bearer sandbox-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req stkPushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CustomerPayBillOnline", req.TransactionType)
		assert.Equal(t, "174379", req.BusinessShortCode)
		assert.NotEmpty(t, req.Password)
		assert.Equal(t, req.PartyA, req.PhoneNumber)

		w.WriteHeader(pushStatus)
		json.NewEncoder(w).Encode(pushBody)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &pushCalls
}

func newTestDaraja(baseURL string, timeout time.Duration) *Daraja {
	return NewDaraja(DarajaConfig{
		BaseURL:     baseURL,
		AppKey:      "key",
		AppSecret:   "secret",
		ShortCode:   "174379",
		Passkey:     "passkey",
		CallbackURL: "http://localhost:8080/api/payments/callback",
		Timeout:     timeout,
	}, zap.NewNop())
}

func TestRequestPush_Success(t *testing.T) {
	server, pushCalls := newSandbox(t, http.StatusOK, map[string]string{
		"CheckoutRequestID": "ws_CO_27072024",
		"ResponseCode":      "0",
	})

	d := newTestDaraja(server.URL, 5*time.Second)

	result, err := d.RequestPush(context.Background(), port.PushRequest{
		Amount:     1500,
		Payer:      "0712345678",
		AccountRef: "res-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_27072024", result.TransactionID)
	assert.Equal(t, 1, *pushCalls)

	// Second push reuses the cached token.
	_, err = d.RequestPush(context.Background(), port.PushRequest{
		Amount: 500, Payer: "254700000001", AccountRef: "res-2",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, *pushCalls)
}

func TestRequestPush_Rejected(t *testing.T) {
	server, _ := newSandbox(t, http.StatusBadRequest, map[string]string{
		"ResponseDescription": "invalid phone",
	})

	d := newTestDaraja(server.URL, 5*time.Second)

	_, err := d.RequestPush(context.Background(), port.PushRequest{
		Amount: 1500, Payer: "0712345678",
	})
	assert.ErrorIs(t, err, port.ErrProviderRejected)
}

func TestRequestPush_ServerError(t *testing.T) {
	server, _ := newSandbox(t, http.StatusServiceUnavailable, nil)

	d := newTestDaraja(server.URL, 5*time.Second)

	_, err := d.RequestPush(context.Background(), port.PushRequest{
		Amount: 1500, Payer: "0712345678",
	})
	assert.ErrorIs(t, err, port.ErrProviderUnavailable)
}

func TestRequestPush_MissingTransactionID(t *testing.T) {
	server, _ := newSandbox(t, http.StatusOK, map[string]string{
		"ResponseDescription": "accepted but no id",
	})

	d := newTestDaraja(server.URL, 5*time.Second)

	_, err := d.RequestPush(context.Background(), port.PushRequest{
		Amount: 1500, Payer: "0712345678",
	})
	assert.ErrorIs(t, err, port.ErrProviderRejected)
}

func TestRequestPush_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := newTestDaraja(server.URL, 20*time.Millisecond)

	_, err := d.RequestPush(context.Background(), port.PushRequest{
		Amount: 1500, Payer: "0712345678",
	})
	assert.ErrorIs(t, err, port.ErrProviderTimeout)
}

func TestFetchCredentials_BadCredentials(t *testing.T) {
	server, _ := newSandbox(t, http.StatusOK, nil)

	d := NewDaraja(DarajaConfig{
		BaseURL:   server.URL,
		AppKey:    "wrong",
		AppSecret: "wrong",
		Timeout:   5 * time.Second,
	}, zap.NewNop())

	_, _, err := d.FetchCredentials(context.Background())
	assert.ErrorIs(t, err, port.ErrProviderRejected)
}

func TestNormalizeMSISDN(t *testing.T) {
	cases := map[string]string{
		"0712345678":    "254712345678",
		"712345678":     "254712345678",
		"+254712345678": "254712345678",
		"254712345678":  "254712345678",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeMSISDN(in), "input %q", in)
	}
}
