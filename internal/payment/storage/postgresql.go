package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hotel-booking/internal/config"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"

	"github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a payment store on an existing
// database connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating payment storage with existing database connection")

	store := &PostgreSQLStore{db: db, log: log}
	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.Info("DATABASE", "Payment storage initialized successfully with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db, log: log}
	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payments table if not exists")

	paymentsQuery := `
    CREATE TABLE IF NOT EXISTS payments (
        payment_id VARCHAR(64) PRIMARY KEY,
        booking_id VARCHAR(36) NOT NULL,
        provider VARCHAR(20) NOT NULL,
        status VARCHAR(20) NOT NULL,
        amount DECIMAL(10,2) NOT NULL,
        currency VARCHAR(8) NOT NULL,
        reference VARCHAR(255),
        raw_response JSONB NOT NULL DEFAULT '{}',
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(paymentsQuery); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payments_booking_id ON payments(booking_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);",
		"CREATE INDEX IF NOT EXISTS idx_payments_provider_reference ON payments(provider, reference);",
	}
	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payment tables and indexes ready")
	return nil
}

const paymentColumns = "payment_id, booking_id, provider, status, amount, currency, reference, raw_response, created_at, updated_at"

func (s *PostgreSQLStore) SavePayment(payment *models.Payment) error {
	s.log.LogDatabase("INSERT", "postgresql", fmt.Sprintf("Saving payment %s for booking %s", payment.PaymentID, payment.BookingID))

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.UpdatedAt = payment.CreatedAt

	raw, err := marshalRaw(payment.RawResponse)
	if err != nil {
		return err
	}

	query := `
    INSERT INTO payments (` + paymentColumns + `)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = s.db.Exec(query,
		payment.PaymentID, payment.BookingID, payment.Provider, payment.Status,
		payment.Amount, payment.Currency, payment.Reference, raw,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Payment %s saved successfully", payment.PaymentID))
	return nil
}

func (s *PostgreSQLStore) GetPayment(id string) (*models.Payment, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Fetching payment %s", id))

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`
	payment, err := s.scanPayment(s.db.QueryRow(query, id))
	if err != nil {
		if err == ErrPaymentNotFound {
			s.log.LogDatabase("NOT_FOUND", "postgresql", fmt.Sprintf("Payment %s not found", id))
			return nil, err
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment %s: %s", id, err.Error()))
		return nil, err
	}
	return payment, nil
}

// GetPaymentByReference resolves a provider callback to its payment
// row. Retried sessions may share a reference; the newest row wins.
func (s *PostgreSQLStore) GetPaymentByReference(provider models.PaymentProvider, reference string) (*models.Payment, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Fetching %s payment for reference %s", provider, reference))

	query := `
    SELECT ` + paymentColumns + ` FROM payments
    WHERE provider = $1 AND reference = $2
    ORDER BY created_at DESC
    LIMIT 1
    `
	payment, err := s.scanPayment(s.db.QueryRow(query, provider, reference))
	if err != nil {
		if err == ErrPaymentNotFound {
			s.log.LogDatabase("NOT_FOUND", "postgresql", fmt.Sprintf("No %s payment for reference %s", provider, reference))
			return nil, err
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment by reference %s: %s", reference, err.Error()))
		return nil, err
	}
	return payment, nil
}

// UpdateStatus moves a payment to the target status only if its current
// status is one of from. Returns whether a row actually changed.
func (s *PostgreSQLStore) UpdateStatus(id string, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error) {
	s.log.LogDatabase("UPDATE", "postgresql", fmt.Sprintf("Transitioning payment %s to %s", id, to))

	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}

	query := `
    UPDATE payments SET status = $1, updated_at = $2
    WHERE payment_id = $3 AND status = ANY($4)
    `
	result, err := s.db.Exec(query, to, time.Now().UTC(), id, pq.Array(states))
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update payment %s: %s", id, err.Error()))
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		s.log.LogDatabase("SKIPPED", "postgresql", fmt.Sprintf("Payment %s not in an eligible state for %s", id, to))
		return false, nil
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Payment %s transitioned to %s", id, to))
	return true, nil
}

// MergeRawResponse folds patch into the stored raw_response blob.
// Existing keys not named in patch are preserved.
func (s *PostgreSQLStore) MergeRawResponse(id string, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	s.log.LogDatabase("UPDATE", "postgresql", fmt.Sprintf("Merging raw response for payment %s", id))

	payment, err := s.GetPayment(id)
	if err != nil {
		return err
	}

	merged := payment.RawResponse
	if merged == nil {
		merged = map[string]interface{}{}
	}
	for k, v := range patch {
		merged[k] = v
	}

	raw, err := marshalRaw(merged)
	if err != nil {
		return err
	}

	query := `UPDATE payments SET raw_response = $1, updated_at = $2 WHERE payment_id = $3`
	if _, err := s.db.Exec(query, raw, time.Now().UTC(), id); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to merge raw response for %s: %s", id, err.Error()))
		return fmt.Errorf("failed to merge raw response: %w", err)
	}
	return nil
}

// ListPayments returns payments newest first, optionally filtered to a
// single status.
func (s *PostgreSQLStore) ListPayments(status models.PaymentStatus, limit, offset int) ([]*models.Payment, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Listing payments (status: %q, limit: %d, offset: %d)", status, limit, offset))

	query := `
    SELECT ` + paymentColumns + ` FROM payments
    WHERE ($1 = '' OR status = $1)
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
    `
	rows, err := s.db.Query(query, status, limit, offset)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list payments: %s", err.Error()))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	return s.collectPayments(rows)
}

func (s *PostgreSQLStore) ListPaymentsByBooking(bookingID string) ([]*models.Payment, error) {
	s.log.LogDatabase("SELECT", "postgresql", fmt.Sprintf("Listing payments for booking %s", bookingID))

	query := `
    SELECT ` + paymentColumns + ` FROM payments
    WHERE booking_id = $1
    ORDER BY created_at DESC
    `
	rows, err := s.db.Query(query, bookingID)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list payments for booking %s: %s", bookingID, err.Error()))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	return s.collectPayments(rows)
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgreSQLStore) scanPayment(row rowScanner) (*models.Payment, error) {
	payment := &models.Payment{}
	var raw []byte
	var reference sql.NullString

	err := row.Scan(
		&payment.PaymentID, &payment.BookingID, &payment.Provider, &payment.Status,
		&payment.Amount, &payment.Currency, &reference, &raw,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	payment.Reference = reference.String
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payment.RawResponse); err != nil {
			return nil, fmt.Errorf("failed to decode raw response: %w", err)
		}
	}
	return payment, nil
}

func (s *PostgreSQLStore) collectPayments(rows *sql.Rows) ([]*models.Payment, error) {
	var payments []*models.Payment
	for rows.Next() {
		payment, err := s.scanPayment(rows)
		if err != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Failed to scan payment row: %s", err.Error()))
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Row iteration error: %s", err.Error()))
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Listed %d payments", len(payments)))
	return payments, nil
}

func marshalRaw(raw map[string]interface{}) ([]byte, error) {
	if raw == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw response: %w", err)
	}
	return data, nil
}
