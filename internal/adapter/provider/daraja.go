package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/port"
)

const (
	oauthPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	// The sandbox reports expires_in as a string of seconds; used when the
	// field is missing or unparseable.
	defaultTokenTTL = 59 * time.Minute
)

type DarajaConfig struct {
	BaseURL     string
	AppKey      string
	AppSecret   string
	ShortCode   string
	Passkey     string
	CallbackURL string
	Timeout     time.Duration
}

// Daraja talks to the Safaricom Daraja API: OAuth client-credential tokens
// and STK push payment requests. All calls carry a bounded timeout.
type Daraja struct {
	cfg    DarajaConfig
	client *http.Client
	tokens *TokenCache
	log    *zap.Logger
	now    func() time.Time
}

func NewDaraja(cfg DarajaConfig, log *zap.Logger) *Daraja {
	d := &Daraja{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
	}
	d.tokens = NewTokenCache(d)
	return d
}

type credentialResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// FetchCredentials implements CredentialSource against the OAuth endpoint.
func (d *Daraja) FetchCredentials(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+oauthPath, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(d.cfg.AppKey, d.cfg.AppSecret)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.log.Warn("credential fetch rejected", zap.Int("status", resp.StatusCode))
		return "", 0, classifyStatus(resp.StatusCode)
	}

	var body credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("%w: decode credentials: %v", port.ErrProviderUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty access token", port.ErrProviderRejected)
	}

	ttl := defaultTokenTTL
	if secs, err := strconv.Atoi(body.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	return body.AccessToken, ttl, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
}

// RequestPush submits an STK push. The provider answers synchronously with a
// CheckoutRequestID; the payment outcome arrives later on the callback URL.
func (d *Daraja) RequestPush(ctx context.Context, push port.PushRequest) (*port.PushResult, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := d.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(d.cfg.ShortCode + d.cfg.Passkey + timestamp))

	msisdn := normalizeMSISDN(push.Payer)
	payload := stkPushRequest{
		BusinessShortCode: d.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            push.Amount,
		PartyA:            msisdn,
		PartyB:            d.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       d.cfg.CallbackURL,
		AccountReference:  push.AccountRef,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.log.Warn("stk push rejected", zap.Int("status", resp.StatusCode))
		return nil, classifyStatus(resp.StatusCode)
	}

	var out stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", port.ErrProviderUnavailable, err)
	}
	if out.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: %s", port.ErrProviderRejected, out.ResponseDesc)
	}

	return &port.PushResult{TransactionID: out.CheckoutRequestID}, nil
}

// normalizeMSISDN renders a subscriber number in 254XXXXXXXXX form.
func normalizeMSISDN(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "254") {
		return phone
	}
	return "254" + strings.TrimLeft(phone, "0")
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", port.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", port.ErrProviderUnavailable, err)
}

func classifyStatus(status int) error {
	if status >= 500 {
		return fmt.Errorf("%w: status %d", port.ErrProviderUnavailable, status)
	}
	return fmt.Errorf("%w: status %d", port.ErrProviderRejected, status)
}
