package providers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hotel-booking/internal/config"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
)

// ErrInvalidPhone is a validation failure, not a provider failure: the
// guest typed a number Daraja cannot receive an STK push on.
var ErrInvalidPhone = errors.New("invalid phone number, use format 07XXXXXXXX or 2547XXXXXXXX")

// M-Pesa result codes seen in callbacks and STK queries. 1032 is the
// subscriber dismissing the prompt; the others are definitive failures.
const (
	mpesaResultOK        = "0"
	mpesaResultCancelled = "1032"
)

var mpesaFailureCodes = map[string]bool{
	"1":    true, // insufficient balance
	"1037": true, // timeout waiting for subscriber
	"2001": true, // wrong PIN / authorization failure
}

// MpesaClient sends Daraja STK pushes and queries their status. Unlike
// Stripe and PayPal the push failure is known synchronously, so a failed
// push still surfaces Raw and Reference for the audit row.
type MpesaClient struct {
	cfg    config.MpesaConfig
	client *http.Client
	clock  func() time.Time
	log    *logger.Logger
}

func NewMpesaClient(cfg config.MpesaConfig, clock func() time.Time, log *logger.Logger) *MpesaClient {
	if clock == nil {
		clock = time.Now
	}
	return &MpesaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
		clock:  clock,
		log:    log,
	}
}

func (c *MpesaClient) Name() models.PaymentProvider { return models.ProviderMpesa }

// NormalizePhone maps local Kenyan formats to 2547XXXXXXXX. Anything
// else, including other country codes, is rejected.
func NormalizePhone(phone string) (string, error) {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	d := string(digits)
	switch {
	case len(d) == 10 && d[0] == '0':
		return "254" + d[1:], nil
	case len(d) == 12 && d[:3] == "254":
		return d, nil
	case len(d) == 9 && d[0] == '7':
		return "254" + d, nil
	}
	return "", ErrInvalidPhone
}

func (c *MpesaClient) configured() bool {
	return c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != "" &&
		c.cfg.Shortcode != "" && c.cfg.Passkey != "" &&
		c.cfg.AuthURL != "" && c.cfg.STKPushURL != "" && c.cfg.CallbackURL != ""
}

func (c *MpesaClient) accessToken() (string, error) {
	req, err := http.NewRequest(http.MethodGet, c.cfg.AuthURL, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryUnavailable,
			Reason:   "unable to reach m-pesa",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryMisconfigured,
			Reason:   "m-pesa credentials rejected",
		}
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return "", &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryUnavailable,
			Reason:   "m-pesa token response unreadable",
			Err:      err,
		}
	}
	return token.AccessToken, nil
}

// password is the Daraja STK password: base64(shortcode+passkey+timestamp).
func (c *MpesaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))
}

func (c *MpesaClient) timestamp() string {
	return c.clock().Format("20060102150405")
}

// CreateSession triggers an STK push. Daraja answers synchronously with
// ResponseCode "0" plus a CheckoutRequestID; any other answer is a
// rejected push whose payload the caller should keep for audit.
func (c *MpesaClient) CreateSession(req SessionRequest) (*Session, error) {
	if !c.configured() {
		return nil, &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryMisconfigured,
			Reason:   "m-pesa is not configured",
		}
	}
	if req.Phone == "" {
		return nil, ErrInvalidPhone
	}
	amount := int64(req.Amount + 0.5)
	if amount < 1 {
		return nil, &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryInvalidAmount,
			Reason:   fmt.Sprintf("invalid amount %.2f", req.Amount),
		}
	}

	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}

	timestamp := c.timestamp()
	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   c.cfg.TransactionType,
		"Amount":            amount,
		"PartyA":            req.Phone,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  "BOOKING-" + req.BookingID,
		"TransactionDesc":   c.cfg.TransactionDesc,
	}

	status, response, err := c.post(c.cfg.STKPushURL, token, payload)
	if err != nil {
		return nil, err
	}

	reference, _ := response["CheckoutRequestID"].(string)
	if status >= 300 || response["ResponseCode"] != "0" {
		reason := mpesaErrorMessage(response)
		c.log.Error("MPESA", fmt.Sprintf("STK push rejected for booking %s: %s", req.BookingID, reason))
		return nil, &ProviderError{
			Provider:  models.ProviderMpesa,
			Category:  CategoryRejected,
			Reason:    reason,
			Reference: reference,
			Raw: map[string]interface{}{
				"request":  payload,
				"response": response,
			},
		}
	}

	c.log.LogProvider("MPESA", "SESSION", fmt.Sprintf("STK push %s sent for booking %s", reference, req.BookingID))
	return &Session{
		Reference: reference,
		Raw: map[string]interface{}{
			"request":             payload,
			"response":            response,
			"phone":               req.Phone,
			"merchant_request_id": response["MerchantRequestID"],
		},
	}, nil
}

// FetchStatus runs an STK push status query. An unreadable or non-"0"
// ResponseCode query is ambiguous, not a failure: the push may still be
// sitting on the subscriber's phone.
func (c *MpesaClient) FetchStatus(reference string) (*Outcome, error) {
	if !c.configured() || c.cfg.STKQueryURL == "" {
		return nil, &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryMisconfigured,
			Reason:   "m-pesa query settings are incomplete",
		}
	}

	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}

	timestamp := c.timestamp()
	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": reference,
	}

	status, response, err := c.post(c.cfg.STKQueryURL, token, payload)
	if err != nil {
		return nil, err
	}
	if status >= 300 || response["ResponseCode"] != "0" {
		return &Outcome{Result: ResultPending, Reason: mpesaErrorMessage(response), Raw: response}, nil
	}

	return mpesaOutcome(resultCode(response), mpesaErrorMessage(response), response, false), nil
}

// STKCallback is the Body.stkCallback envelope Daraja posts to the
// callback URL.
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        interface{} `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []struct {
			Name  string      `json:"Name"`
			Value interface{} `json:"Value"`
		} `json:"Item"`
	} `json:"CallbackMetadata"`
}

// ParseCallback extracts the checkout reference and normalized outcome
// from a raw Daraja callback body.
func ParseCallback(body []byte) (string, *Outcome, error) {
	var envelope struct {
		Body struct {
			StkCallback STKCallback `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", nil, err
	}

	cb := envelope.Body.StkCallback
	metadata := map[string]interface{}{}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name != "" {
			metadata[item.Name] = item.Value
		}
	}

	raw := map[string]interface{}{
		"callback": structToMap(cb),
		"metadata": metadata,
	}
	if cb.ResultDesc != "" {
		raw["callback_result_desc"] = cb.ResultDesc
	}

	code := ""
	if cb.ResultCode != nil {
		code = fmt.Sprintf("%v", cb.ResultCode)
	}
	outcome := mpesaOutcome(code, cb.ResultDesc, nil, true)
	outcome.Raw = raw
	return cb.CheckoutRequestID, outcome, nil
}

// mpesaOutcome maps a ResultCode to the normalized result: "0" success,
// "1032" subscriber cancel, known failure codes failure. A callback is
// Daraja's final word on the push, so there any other nonzero code is
// also a failure; a status query can race the subscriber mid-prompt, so
// unknown codes stay pending and the next poll settles it.
func mpesaOutcome(code, reason string, raw map[string]interface{}, terminal bool) *Outcome {
	outcome := &Outcome{Reason: reason}
	if raw != nil {
		outcome.Raw = map[string]interface{}{"stk_query": raw}
	}
	switch {
	case code == mpesaResultOK:
		outcome.Result = ResultSuccess
	case code == mpesaResultCancelled:
		outcome.Result = ResultCancelled
	case mpesaFailureCodes[code]:
		outcome.Result = ResultFailure
	case terminal && code != "":
		outcome.Result = ResultFailure
	default:
		outcome.Result = ResultPending
	}
	return outcome
}

func (c *MpesaClient) post(url, token string, payload interface{}) (int, map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &ProviderError{
			Provider: models.ProviderMpesa,
			Category: CategoryUnavailable,
			Reason:   "unable to reach m-pesa",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		m = map[string]interface{}{"raw_text": string(data)}
	}
	return resp.StatusCode, m, nil
}

func resultCode(response map[string]interface{}) string {
	if v, ok := response["ResultCode"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func mpesaErrorMessage(response map[string]interface{}) string {
	for _, key := range []string{"errorMessage", "ResultDesc", "ResponseDescription"} {
		if msg, ok := response[key].(string); ok && msg != "" {
			return msg
		}
	}
	return "m-pesa request failed"
}
