package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hotel-booking/internal/config"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
)

// PayPalClient drives the Checkout Orders v2 flow: create an order, send
// the guest to the approval link, capture on the redirect return. There
// is no official Go SDK worth carrying; the REST surface is three calls.
type PayPalClient struct {
	cfg       config.PayPalConfig
	publicURL string
	client    *http.Client
	log       *logger.Logger
}

func NewPayPalClient(cfg config.PayPalConfig, publicURL string, log *logger.Logger) *PayPalClient {
	return &PayPalClient{
		cfg:       cfg,
		publicURL: strings.TrimRight(publicURL, "/"),
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
}

func (c *PayPalClient) Name() models.PaymentProvider { return models.ProviderPayPal }

func (c *PayPalClient) configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != "" && c.cfg.BaseURL != ""
}

func (c *PayPalClient) accessToken() (string, error) {
	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", body)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryUnavailable,
			Reason:   "unable to reach paypal",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryMisconfigured,
			Reason:   "paypal credentials rejected",
		}
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return "", &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryUnavailable,
			Reason:   "paypal token response unreadable",
			Err:      err,
		}
	}
	return token.AccessToken, nil
}

func (c *PayPalClient) CreateSession(req SessionRequest) (*Session, error) {
	if !c.configured() {
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryMisconfigured,
			Reason:   "paypal is not configured",
		}
	}
	if req.Amount <= 0 {
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryInvalidAmount,
			Reason:   fmt.Sprintf("invalid amount %.2f", req.Amount),
		}
	}

	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}

	returnURL := fmt.Sprintf("%s/api/v1/payments/paypal/return?booking_id=%s", c.publicURL, url.QueryEscape(req.BookingID))
	cancelURL := fmt.Sprintf("%s/api/v1/payments/paypal/cancel?booking_id=%s", c.publicURL, url.QueryEscape(req.BookingID))

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]string{
					"currency_code": strings.ToUpper(req.Currency),
					"value":         fmt.Sprintf("%.2f", req.Amount),
				},
				"custom_id": req.BookingID,
			},
		},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	status, order, err := c.post("/v2/checkout/orders", token, payload)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		c.log.Error("PAYPAL", fmt.Sprintf("Order creation rejected with HTTP %d", status))
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryRejected,
			Reason:   "paypal rejected the order",
			Raw:      order,
		}
	}

	orderID, _ := order["id"].(string)
	approveURL := approvalLink(order)
	if orderID == "" || approveURL == "" {
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryRejected,
			Reason:   "paypal approval link not found",
			Raw:      order,
		}
	}

	c.log.LogProvider("PAYPAL", "SESSION", fmt.Sprintf("Created order %s for booking %s", orderID, req.BookingID))
	return &Session{
		Reference:   orderID,
		RedirectURL: approveURL,
		Raw:         order,
	}, nil
}

// Capture executes the order after the guest approved it. Any 2xx
// capture response settles the payment.
func (c *PayPalClient) Capture(reference string) (*Outcome, error) {
	if !c.configured() {
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryMisconfigured,
			Reason:   "paypal is not configured",
		}
	}
	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}

	status, capture, err := c.post("/v2/checkout/orders/"+url.PathEscape(reference)+"/capture", token, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return &Outcome{Result: ResultFailure, Reason: "paypal capture failed", Raw: map[string]interface{}{"callback": capture}}, nil
	}
	return &Outcome{Result: ResultSuccess, Raw: map[string]interface{}{"callback": capture}}, nil
}

func (c *PayPalClient) FetchStatus(reference string) (*Outcome, error) {
	if !c.configured() {
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryMisconfigured,
			Reason:   "paypal is not configured",
		}
	}
	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryUnavailable,
			Reason:   "unable to reach paypal",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	order := decodeBody(resp.Body)
	raw := map[string]interface{}{"status_check": order}
	if resp.StatusCode >= 300 {
		return &Outcome{Result: ResultPending, Reason: "order status unavailable", Raw: raw}, nil
	}

	switch order["status"] {
	case "COMPLETED":
		return &Outcome{Result: ResultSuccess, Raw: raw}, nil
	case "VOIDED":
		return &Outcome{Result: ResultCancelled, Reason: "order voided", Raw: raw}, nil
	default:
		reason, _ := order["status"].(string)
		return &Outcome{Result: ResultPending, Reason: reason, Raw: raw}, nil
	}
}

func (c *PayPalClient) post(path, token string, payload interface{}) (int, map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &ProviderError{
			Provider: models.ProviderPayPal,
			Category: CategoryUnavailable,
			Reason:   "unable to reach paypal",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(resp.Body), nil
}

func decodeBody(r io.Reader) map[string]interface{} {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"raw_text": string(data)}
	}
	return m
}

func approvalLink(order map[string]interface{}) string {
	links, _ := order["links"].([]interface{})
	for _, l := range links {
		link, ok := l.(map[string]interface{})
		if !ok {
			continue
		}
		if link["rel"] == "approve" {
			href, _ := link["href"].(string)
			return href
		}
	}
	return ""
}
