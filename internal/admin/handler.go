package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"hotel-booking/internal/booking"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/payment"
	"hotel-booking/internal/payment/storage"
	"hotel-booking/internal/utils"

	"github.com/gin-gonic/gin"
)

// Handler is the staff API: payment triage and the booked-rooms report.
type Handler struct {
	Store      storage.Store
	Reconciler *payment.Reconciler
	Bookings   *booking.Service
	Logger     *logger.Logger
}

func NewHandler(store storage.Store, reconciler *payment.Reconciler, bookings *booking.Service, log *logger.Logger) *Handler {
	return &Handler{
		Store:      store,
		Reconciler: reconciler,
		Bookings:   bookings,
		Logger:     log,
	}
}

func (h *Handler) Routes(r gin.IRoutes) {
	r.GET("/payments", h.ListPayments)
	r.GET("/payments/:paymentId", h.GetPayment)
	r.POST("/payments/:paymentId/status", h.OverrideStatus)
	r.POST("/payments/:paymentId/query", h.QueryMpesa)
	r.GET("/bookings/:bookingId/payments", h.PaymentsForBooking)
	r.GET("/reports/booked-rooms", h.BookedRooms)
}

// ListPayments pages through payments, optionally filtered by status.
func (h *Handler) ListPayments(c *gin.Context) {
	statusFilter := c.Query("status")
	if statusFilter != "" && !models.ValidPaymentStatus(statusFilter) {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Unknown payment status", statusFilter))
		return
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	payments, err := h.Store.ListPayments(models.PaymentStatus(statusFilter), limit, offset)
	if err != nil {
		h.Logger.Error("ADMIN", fmt.Sprintf("ListPayments: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not list payments", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payments listed", payments))
}

func (h *Handler) GetPayment(c *gin.Context) {
	paymentID := c.Param("paymentId")

	found, err := h.Store.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Payment not found", paymentID))
			return
		}
		h.Logger.Error("ADMIN", fmt.Sprintf("GetPayment: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not fetch payment", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment fetched", found))
}

// OverrideStatus forces a payment into a status, with booking cascades.
func (h *Handler) OverrideStatus(c *gin.Context) {
	paymentID := c.Param("paymentId")

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if !models.ValidPaymentStatus(req.Status) {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Unknown payment status", req.Status))
		return
	}

	h.Logger.Info("ADMIN", fmt.Sprintf("OverrideStatus: payment=%s status=%s", paymentID, req.Status))

	updated, err := h.Reconciler.AdminOverride(paymentID, models.PaymentStatus(req.Status))
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Payment not found", paymentID))
			return
		}
		h.Logger.Error("ADMIN", fmt.Sprintf("OverrideStatus: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not override status", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment status overridden", updated))
}

// QueryMpesa resolves a stuck STK push. A subscriber-cancelled push
// cancels the booking too; the admin is settling the attempt.
func (h *Handler) QueryMpesa(c *gin.Context) {
	paymentID := c.Param("paymentId")

	updated, err := h.Reconciler.PollMpesa(paymentID, true)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Payment not found", paymentID))
		case errors.Is(err, payment.ErrProviderMismatch):
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Not an M-Pesa payment", paymentID))
		default:
			h.Logger.Error("ADMIN", fmt.Sprintf("QueryMpesa: %v", err))
			c.JSON(http.StatusBadGateway, utils.ErrorResponse("STK query failed", err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("STK status queried", updated))
}

func (h *Handler) PaymentsForBooking(c *gin.Context) {
	bookingID := c.Param("bookingId")

	payments, err := h.Store.ListPaymentsByBooking(bookingID)
	if err != nil {
		h.Logger.Error("ADMIN", fmt.Sprintf("PaymentsForBooking: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not list payments", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payments listed", payments))
}

// BookedRooms is the occupancy report of CONFIRMED stays.
func (h *Handler) BookedRooms(c *gin.Context) {
	bookings, err := h.Bookings.BookedRooms()
	if err != nil {
		h.Logger.Error("ADMIN", fmt.Sprintf("BookedRooms: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not list booked rooms", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Booked rooms listed", bookings))
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
