package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB wraps an existing database connection and
// ensures the payments table exists.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.Info("DATABASE", "Payment storage initialized successfully")
	return store, nil
}

func NewPostgreSQLStore(dsn string, log *logger.Logger) (*PostgreSQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgreSQLStoreWithDB(db, log)
}

func (s *PostgreSQLStore) initTables() error {
	paymentsQuery := `
    CREATE TABLE IF NOT EXISTS payments (
        payment_id VARCHAR(64) PRIMARY KEY,
        session_id VARCHAR(64) NOT NULL,
        intent_id  VARCHAR(128) NOT NULL DEFAULT '',
        amount     BIGINT NOT NULL,
        currency   VARCHAR(8) NOT NULL,
        status     VARCHAR(32) NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ
    );
    `

	if _, err := s.db.Exec(paymentsQuery); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payments_session_id ON payments(session_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *PostgreSQLStore) SavePayment(payment *models.Payment) error {
	s.log.LogPayment("INSERT", payment.SessionID, fmt.Sprintf("saving payment %s", payment.PaymentID))

	query := `
    INSERT INTO payments (
        payment_id, session_id, intent_id, amount, currency, status, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := s.db.Exec(query,
		payment.PaymentID, payment.SessionID, payment.IntentID,
		payment.Amount, payment.Currency, payment.Status, payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment %s: %w", payment.PaymentID, err)
	}
	return nil
}

func (s *PostgreSQLStore) GetPayment(id string) (*models.Payment, error) {
	query := `
    SELECT payment_id, session_id, intent_id, amount, currency, status, created_at, updated_at
    FROM payments WHERE payment_id = $1
    `
	return s.scanPayment(s.db.QueryRow(query, id))
}

// GetPaymentBySessionID returns the most recent payment for a session.
func (s *PostgreSQLStore) GetPaymentBySessionID(sessionID string) (*models.Payment, error) {
	query := `
    SELECT payment_id, session_id, intent_id, amount, currency, status, created_at, updated_at
    FROM payments WHERE session_id = $1
    ORDER BY created_at DESC LIMIT 1
    `
	return s.scanPayment(s.db.QueryRow(query, sessionID))
}

func (s *PostgreSQLStore) scanPayment(row *sql.Row) (*models.Payment, error) {
	var p models.Payment
	var updatedAt sql.NullTime

	err := row.Scan(&p.PaymentID, &p.SessionID, &p.IntentID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	return &p, nil
}

func (s *PostgreSQLStore) UpdatePaymentStatus(id string, status models.PaymentStatus) error {
	query := `UPDATE payments SET status = $1, updated_at = $2 WHERE payment_id = $3`

	result, err := s.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
