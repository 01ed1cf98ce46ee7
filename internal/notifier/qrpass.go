package notifier

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"hotel-booking/internal/models"

	"github.com/skip2/go-qrcode"
)

// CheckInPass is the payload the front desk scanner decrypts. It is
// embedded in the receipt email's QR code.
type CheckInPass struct {
	BookingID string    `json:"booking_id"`
	RoomID    string    `json:"room_id,omitempty"`
	GuestName string    `json:"guest_name"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	IssuedAt  time.Time `json:"issued_at"`
}

type PassGenerator struct {
	secret []byte
}

func NewPassGenerator(secret string) *PassGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &PassGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR renders the pass as a QR code PNG. The payload is
// AES-encrypted so a photographed code cannot be forged for another
// booking.
func (g *PassGenerator) GenerateEncryptedQR(pass CheckInPass) ([]byte, error) {
	data, err := json.Marshal(pass)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// PassForBooking builds the pass embedded in a receipt.
func PassForBooking(booking *models.Booking) CheckInPass {
	return CheckInPass{
		BookingID: booking.BookingID,
		RoomID:    booking.RoomID,
		GuestName: booking.FirstName + " " + booking.LastName,
		CheckIn:   booking.CheckIn,
		CheckOut:  booking.CheckOut,
		IssuedAt:  time.Now().UTC(),
	}
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
