// File: internal/infra/payment/razorpay_gateway.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/ports/adapter"
)

var _ adapter.RazorpayGateway = (*RazorpayDirectGateway)(nil)

// RazorpayDirectGateway implements the Razorpay Orders API using direct HTTP
// calls with basic auth.
type RazorpayDirectGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	timeout       time.Duration
	client        *http.Client
}

func NewRazorpayDirectGateway(keyID, keySecret, webhookSecret, baseURL string, timeout time.Duration) *RazorpayDirectGateway {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &RazorpayDirectGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		timeout:       timeout,
		client:        &http.Client{},
	}
}

func (g *RazorpayDirectGateway) Name() string { return "razorpay" }

// razorpayOrderResponse represents the response from the order creation API.
type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder allocates a provider-side order. A deadline error is surfaced
// as domain.ErrProviderTimeout: the order may or may not exist on the
// provider side, so the caller must treat the attempt as unresolved rather
// than failed.
func (g *RazorpayDirectGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*adapter.ProviderOrder, error) {
	requestData := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		requestData["notes"] = notes
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	url := g.baseURL + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrProviderTimeout
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp razorpayErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Code != "" {
			return nil, fmt.Errorf("razorpay error: code %s, description: %s", errResp.Error.Code, errResp.Error.Description)
		}
		return nil, fmt.Errorf("razorpay error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response razorpayOrderResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if response.ID == "" {
		return nil, fmt.Errorf("razorpay response missing order id, body: %s", string(body))
	}

	return &adapter.ProviderOrder{
		ID:       response.ID,
		Amount:   response.Amount,
		Currency: response.Currency,
	}, nil
}

// VerifyPaymentSignature recomputes HMAC-SHA256 over orderID + "|" +
// paymentID with the key secret and compares in constant time.
func (g *RazorpayDirectGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyHMAC(g.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature over the raw body using
// the dedicated webhook secret, not the key secret.
func (g *RazorpayDirectGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMAC(g.webhookSecret, body, signature)
}

func verifyHMAC(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
