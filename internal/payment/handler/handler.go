package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"hotel-booking/internal/booking"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/payment"
	"hotel-booking/internal/payment/providers"
	"hotel-booking/internal/payment/storage"
	"hotel-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody caps webhook reads; Stripe recommends 64KB.
const maxWebhookBody = 65536

type Handler struct {
	Payments   *payment.Service
	Reconciler *payment.Reconciler
	Logger     *logger.Logger
}

func NewHandler(payments *payment.Service, reconciler *payment.Reconciler, log *logger.Logger) *Handler {
	return &Handler{
		Payments:   payments,
		Reconciler: reconciler,
		Logger:     log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/bookings/{bookingId}/payments", h.OpenSession)
	r.Get("/payments/{paymentId}", h.GetPayment)
	r.Post("/payments/{paymentId}/poll", h.PollMpesa)
	r.Post("/payments/stripe/confirm", h.ConfirmStripe)
	r.Get("/payments/paypal/return", h.PayPalReturn)
	r.Get("/payments/paypal/cancel", h.PayPalCancel)
	r.Post("/webhooks/stripe", h.StripeWebhook)
	r.Post("/webhooks/mpesa", h.MpesaCallback)
}

// OpenSession starts a payment attempt for a booking.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	var req models.PaymentSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid payment JSON", err.Error()))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("OpenSession: booking=%s provider=%s", bookingID, req.Provider))

	session, err := h.Payments.OpenSession(bookingID, req)
	if err != nil {
		h.writeSessionError(w, bookingID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Payment session opened", session))
}

func (h *Handler) writeSessionError(w http.ResponseWriter, bookingID string, err error) {
	var provErr *providers.ProviderError
	var vErr *booking.ValidationError
	switch {
	case errors.Is(err, payment.ErrBookingNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", bookingID))
	case errors.Is(err, payment.ErrBookingNotPayable):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Booking is not awaiting payment", bookingID))
	case errors.Is(err, payment.ErrUnknownProvider):
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unknown payment provider", err.Error()))
	case errors.Is(err, providers.ErrInvalidPhone):
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid phone number", err.Error()))
	case errors.As(err, &vErr):
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid payment request", vErr.Msg))
	case errors.As(err, &provErr):
		status := http.StatusBadGateway
		if provErr.Category == providers.CategoryInvalidAmount {
			status = http.StatusUnprocessableEntity
		}
		h.Logger.Error("API", fmt.Sprintf("OpenSession: provider error for booking %s: %v", bookingID, err))
		h.writeJSON(w, status, utils.ErrorResponse("Payment provider rejected the session", provErr.Reason))
	default:
		h.Logger.Error("API", fmt.Sprintf("OpenSession: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not open payment session", err.Error()))
	}
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	found, err := h.Payments.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Payment not found", paymentID))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetPayment: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not fetch payment", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment fetched", found))
}

// ConfirmStripe reconciles a Stripe payment after the browser returns.
func (h *Handler) ConfirmStripe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID       string `json:"payment_id"`
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid confirm JSON", err.Error()))
		return
	}
	if req.PaymentID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("payment_id is required", ""))
		return
	}

	reconciled, err := h.Reconciler.ConfirmStripe(req.PaymentID, req.PaymentIntentID)
	if err != nil {
		h.writeReconcileError(w, req.PaymentID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment reconciled", reconciled))
}

// StripeWebhook applies Stripe events. Anything except a bad signature
// is acknowledged so Stripe does not retry what we cannot use.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unreadable webhook body", err.Error()))
		return
	}

	err = h.Reconciler.HandleStripeWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook signature", ""))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing failed", err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PayPalReturn captures the order the guest just approved.
func (h *Handler) PayPalReturn(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("token")
	if orderID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("token query parameter is required", ""))
		return
	}

	reconciled, err := h.Reconciler.PayPalReturn(orderID)
	if err != nil {
		h.writeReconcileError(w, orderID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment reconciled", reconciled))
}

// PayPalCancel records the guest aborting on PayPal's approval page.
func (h *Handler) PayPalCancel(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("token")
	if orderID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("token query parameter is required", ""))
		return
	}

	reconciled, err := h.Reconciler.PayPalCancel(orderID)
	if err != nil {
		h.writeReconcileError(w, orderID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment cancelled", reconciled))
}

// MpesaCallback receives the Daraja STK result. Daraja expects a zero
// ResultCode acknowledgement whenever we accepted the delivery.
func (h *Handler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unreadable callback body", err.Error()))
		return
	}

	if err := h.Reconciler.MpesaCallback(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("MpesaCallback: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Callback processing failed", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

// PollMpesa runs an STK status query for a payment still waiting on its
// callback.
func (h *Handler) PollMpesa(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	reconciled, err := h.Reconciler.PollMpesa(paymentID, false)
	if err != nil {
		h.writeReconcileError(w, paymentID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment polled", reconciled))
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, id string, err error) {
	var provErr *providers.ProviderError
	switch {
	case errors.Is(err, storage.ErrPaymentNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Payment not found", id))
	case errors.Is(err, payment.ErrProviderMismatch), errors.Is(err, payment.ErrReferenceMismatch):
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Payment does not match this request", err.Error()))
	case errors.As(err, &provErr):
		h.Logger.Error("API", fmt.Sprintf("Reconcile: provider error for %s: %v", id, err))
		h.writeJSON(w, http.StatusBadGateway, utils.ErrorResponse("Payment provider unavailable", provErr.Reason))
	default:
		h.Logger.Error("API", fmt.Sprintf("Reconcile: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Reconciliation failed", err.Error()))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}
