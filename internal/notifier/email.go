package notifier

import (
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"hotel-booking/internal/config"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"
)

// EmailNotifier sends guest mail over plain SMTP. When no SMTP
// credentials are configured every send is a logged no-op, which keeps
// local development from needing a mail server.
type EmailNotifier struct {
	cfg    config.EmailConfig
	passes *PassGenerator
	log    *logger.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, log *logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		passes: NewPassGenerator(cfg.QRSecret),
		log:    log,
	}
}

func (n *EmailNotifier) configured() bool {
	return n.cfg.SMTPHost != "" && n.cfg.SMTPUsername != "" && n.cfg.SMTPPassword != ""
}

// SendBookingAck confirms we received the booking request and tells the
// guest payment is still outstanding.
func (n *EmailNotifier) SendBookingAck(booking *models.Booking, room *models.Room) error {
	subject := "We received your booking request"

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s %s,\r\n\r\n", booking.FirstName, booking.LastName)
	fmt.Fprintf(&body, "Your booking %s has been recorded and is awaiting payment.\r\n\r\n", booking.BookingID)
	if room != nil {
		fmt.Fprintf(&body, "Room: %s\r\n", room.Title)
	}
	fmt.Fprintf(&body, "Check-in: %s\r\nCheck-out: %s\r\nGuests: %d\r\n",
		booking.CheckIn.Format("2 January 2006"), booking.CheckOut.Format("2 January 2006"), booking.Guests)
	if booking.TotalPrice > 0 {
		fmt.Fprintf(&body, "Total: %.2f\r\n", booking.TotalPrice)
	}
	body.WriteString("\r\nThe booking is held once payment completes.\r\n")

	return n.send(booking.Email, subject, body.String(), nil)
}

// SendReceipt is the payment confirmation, with the encrypted check-in
// QR attached.
func (n *EmailNotifier) SendReceipt(booking *models.Booking, room *models.Room, amount float64) error {
	subject := "Payment received - booking " + booking.BookingID

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s %s,\r\n\r\n", booking.FirstName, booking.LastName)
	fmt.Fprintf(&body, "We have received your payment of %.2f. Your booking is confirmed.\r\n\r\n", amount)
	if room != nil {
		fmt.Fprintf(&body, "Room: %s\r\n", room.Title)
	}
	fmt.Fprintf(&body, "Check-in: %s\r\nCheck-out: %s\r\n",
		booking.CheckIn.Format("2 January 2006"), booking.CheckOut.Format("2 January 2006"))
	body.WriteString("\r\nPresent the attached QR code at the front desk on arrival.\r\n")

	qrPNG, err := n.passes.GenerateEncryptedQR(PassForBooking(booking))
	if err != nil {
		n.log.Warn("NOTIFY", "Check-in QR generation failed for booking "+booking.BookingID+": "+err.Error())
		qrPNG = nil
	}

	return n.send(booking.Email, subject, body.String(), qrPNG)
}

func (n *EmailNotifier) send(to, subject, body string, qrPNG []byte) error {
	if !n.configured() {
		n.log.Info("NOTIFY", fmt.Sprintf("SMTP not configured, skipping mail %q to %s", subject, to))
		return nil
	}

	msg := buildMessage(n.cfg.FromAddress, to, subject, body, qrPNG)
	addr := n.cfg.SMTPHost + ":" + n.cfg.SMTPPort
	auth := smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost)

	if err := smtp.SendMail(addr, auth, n.cfg.FromAddress, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	n.log.Info("NOTIFY", fmt.Sprintf("Sent %q to %s", subject, to))
	return nil
}

// buildMessage assembles the MIME payload, multipart when a QR image is
// attached.
func buildMessage(from, to, subject, body string, qrPNG []byte) []byte {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")

	if qrPNG == nil {
		msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		msg.WriteString(body)
		return []byte(msg.String())
	}

	boundary := "hotel-booking-receipt"
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: image/png\r\n")
	msg.WriteString("Content-Disposition: attachment; filename=checkin-pass.png\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	encoded := base64.StdEncoding.EncodeToString(qrPNG)
	for len(encoded) > 76 {
		msg.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	msg.WriteString(encoded + "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return []byte(msg.String())
}
