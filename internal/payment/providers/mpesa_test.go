package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"local zero prefix", "0712345678", "254712345678", true},
		{"already international", "254712345678", "254712345678", true},
		{"bare nine digits", "712345678", "254712345678", true},
		{"plus and spaces stripped", "+254 712 345 678", "254712345678", true},
		{"dashes stripped", "0712-345-678", "254712345678", true},
		{"too short", "07123", "", false},
		{"wrong country code", "255712345678", "", false},
		{"empty", "", "", false},
		{"letters only", "call me", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.input)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMpesaOutcomeMapping(t *testing.T) {
	cases := []struct {
		code         string
		wantCallback Result
		wantQuery    Result
	}{
		{"0", ResultSuccess, ResultSuccess},
		{"1032", ResultCancelled, ResultCancelled},
		{"1", ResultFailure, ResultFailure},
		{"1037", ResultFailure, ResultFailure},
		{"2001", ResultFailure, ResultFailure},
		// Unknown nonzero codes: a callback is final, a query may have
		// caught the push mid-prompt
		{"1025", ResultFailure, ResultPending},
		{"4999", ResultFailure, ResultPending},
		{"", ResultPending, ResultPending},
	}

	for _, tc := range cases {
		outcome := mpesaOutcome(tc.code, "desc", nil, true)
		assert.Equal(t, tc.wantCallback, outcome.Result, "callback code %q", tc.code)
		assert.Equal(t, "desc", outcome.Reason)

		outcome = mpesaOutcome(tc.code, "desc", nil, false)
		assert.Equal(t, tc.wantQuery, outcome.Result, "query code %q", tc.code)
	}
}

func TestParseCallbackSuccess(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 4500.0},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`)

	reference, outcome, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", reference)
	assert.Equal(t, ResultSuccess, outcome.Result)

	metadata, ok := outcome.Raw["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "NLJ7RT61SV", metadata["MpesaReceiptNumber"])
	assert.Equal(t, "The service request is processed successfully.", outcome.Raw["callback_result_desc"])
}

func TestParseCallbackCancelled(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_cancelled",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	reference, outcome, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_cancelled", reference)
	assert.Equal(t, ResultCancelled, outcome.Result)
	assert.Equal(t, "Request cancelled by user", outcome.Reason)
}

func TestParseCallbackUnknownCodeIsFailure(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_unlisted",
				"ResultCode": 1025,
				"ResultDesc": "An error occurred while sending a push request"
			}
		}
	}`)

	reference, outcome, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_unlisted", reference)
	assert.Equal(t, ResultFailure, outcome.Result)
}

func TestParseCallbackMalformed(t *testing.T) {
	_, _, err := ParseCallback([]byte("not json"))
	assert.Error(t, err)
}
