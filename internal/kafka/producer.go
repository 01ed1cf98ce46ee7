package kafka

import (
	"context"
	"encoding/json"
	"time"

	"hotel-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer streams booking and payment events. One writer per topic,
// matching how downstream consumers subscribe.
type Producer struct {
	bookingWriter *kafka.Writer
	paymentWriter *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		bookingWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   TopicBookingEvents,
		}),
		paymentWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   TopicPaymentEvents,
		}),
	}
}

// PublishBookingCreated streams the booking creation event
func (p *Producer) PublishBookingCreated(booking models.Booking) error {
	return p.writeBooking("booking.created", booking)
}

// PublishBookingConfirmed streams the booking confirmation event
func (p *Producer) PublishBookingConfirmed(booking models.Booking) error {
	return p.writeBooking("booking.confirmed", booking)
}

func (p *Producer) writeBooking(eventType string, booking models.Booking) error {
	event := models.BookingEvent{
		Type:      eventType,
		BookingID: booking.BookingID,
		RoomID:    booking.RoomID,
		Status:    string(booking.Status),
		Timestamp: time.Now().UTC(),
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.bookingWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.BookingID),
			Value: msgBytes,
		},
	)
}

// PublishPaymentEvent streams a payment lifecycle event
func (p *Producer) PublishPaymentEvent(event models.PaymentEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.paymentWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.PaymentID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.bookingWriter.Close(); err != nil {
		return err
	}
	return p.paymentWriter.Close()
}
