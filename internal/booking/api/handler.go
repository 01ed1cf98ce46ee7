package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hotel-booking/internal/booking"
	"hotel-booking/internal/booking/db"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
	"hotel-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.Service
	Logger         *logger.Logger
}

func NewHandler(bookingService *booking.Service, log *logger.Logger) *Handler {
	return &Handler{
		BookingService: bookingService,
		Logger:         log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{roomId}", h.GetRoom)
	r.Get("/rooms/{roomId}/availability", h.CheckAvailability)
	r.Get("/rooms/{roomId}/quote", h.QuoteStay)
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings/{bookingId}", h.GetBooking)
}

// ListRooms returns the catalogue. With check_in/check_out query params
// each room is annotated with whether it can take that stay.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	checkInStr := r.URL.Query().Get("check_in")
	checkOutStr := r.URL.Query().Get("check_out")

	if checkInStr == "" || checkOutStr == "" {
		rooms, err := h.BookingService.ListRooms()
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("ListRooms: %v", err))
			h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not list rooms", err.Error()))
			return
		}
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Rooms listed", rooms))
		return
	}

	checkIn, checkOut, err := h.parseStayDates(checkInStr, checkOutStr)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid dates", err.Error()))
		return
	}

	rooms, err := h.BookingService.RoomsWithAvailability(checkIn, checkOut)
	if err != nil {
		if errors.Is(err, booking.ErrInvalidStay) {
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid dates", err.Error()))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("ListRooms: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not list rooms", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Rooms listed", rooms))
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	room, err := h.BookingService.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Room not found", roomID))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetRoom: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not fetch room", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Room fetched", room))
}

// CheckAvailability answers whether one room can take the stay.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	checkIn, checkOut, err := h.parseStayDates(r.URL.Query().Get("check_in"), r.URL.Query().Get("check_out"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid dates", err.Error()))
		return
	}

	available, err := h.BookingService.CheckAvailability(roomID, checkIn, checkOut)
	if err != nil {
		if errors.Is(err, booking.ErrInvalidStay) {
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid dates", err.Error()))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CheckAvailability: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Availability check failed", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Availability checked", map[string]interface{}{
		"room_id":   roomID,
		"check_in":  checkIn.Format("2006-01-02"),
		"check_out": checkOut.Format("2006-01-02"),
		"available": available,
	}))
}

// QuoteStay prices a stay without creating anything.
func (h *Handler) QuoteStay(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	checkIn, checkOut, err := h.parseStayDates(r.URL.Query().Get("check_in"), r.URL.Query().Get("check_out"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid dates", err.Error()))
		return
	}

	quote, err := h.BookingService.QuoteStay(roomID, checkIn, checkOut)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Room not found", roomID))
		case errors.Is(err, booking.ErrInvalidStay):
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid dates", err.Error()))
		default:
			h.Logger.Error("API", fmt.Sprintf("QuoteStay: %v", err))
			h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Quote failed", err.Error()))
		}
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Stay quoted", quote))
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid booking JSON", err.Error()))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateBooking: room=%s dates=%s..%s", req.RoomID, req.CheckIn, req.CheckOut))

	created, err := h.BookingService.CreateBooking(req)
	if err != nil {
		var vErr *booking.ValidationError
		switch {
		case errors.As(err, &vErr):
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid booking request", vErr.Msg))
		case errors.Is(err, booking.ErrRoomUnavailable):
			h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Room unavailable", err.Error()))
		case errors.Is(err, db.ErrNotFound):
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Room not found", req.RoomID))
		default:
			h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
			h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not create booking", err.Error()))
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", created))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	found, err := h.BookingService.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", bookingID))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetBooking: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not fetch booking", err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking fetched", found))
}

func (h *Handler) parseStayDates(checkInStr, checkOutStr string) (time.Time, time.Time, error) {
	if checkInStr == "" || checkOutStr == "" {
		return time.Time{}, time.Time{}, errors.New("check_in and check_out are required")
	}
	checkIn, err := booking.ParseDate(checkInStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid check_in %q", checkInStr)
	}
	checkOut, err := booking.ParseDate(checkOutStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid check_out %q", checkOutStr)
	}
	return checkIn, checkOut, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}
