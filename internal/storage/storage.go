// Package storage provides SQLite-backed persistence for price alerts
// and notifications.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/cryptotracker/core/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/cryptotracker/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "cryptotracker", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping reports database health.
func (s *Storage) Ping() error {
	return s.db.Ping()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_alerts (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			coin_id          TEXT NOT NULL,
			coin_name        TEXT NOT NULL,
			coin_symbol      TEXT NOT NULL,
			condition        TEXT NOT NULL,
			target_price_usd TEXT NOT NULL,
			is_active        INTEGER NOT NULL DEFAULT 1,
			triggered        INTEGER NOT NULL DEFAULT 0,
			triggered_at     INTEGER,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			message    TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '{}',
			is_read    INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_pending ON price_alerts(is_active, triggered)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddAlert inserts a new price alert. A nil ID and zero CreatedAt are
// filled in before validation.
func (s *Storage) AddAlert(alert *models.PriceAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}

	var triggeredAt any
	if alert.TriggeredAt != nil {
		triggeredAt = alert.TriggeredAt.UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO price_alerts
			(id, user_id, coin_id, coin_name, coin_symbol, condition,
			 target_price_usd, is_active, triggered, triggered_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		alert.ID.String(), alert.UserID, alert.CoinID, alert.CoinName, alert.CoinSymbol,
		alert.Condition, alert.TargetPrice.String(),
		boolToInt(alert.IsActive), boolToInt(alert.Triggered), triggeredAt,
		alert.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert returns one alert by ID.
func (s *Storage) GetAlert(id uuid.UUID) (*models.PriceAlert, error) {
	row := s.db.QueryRow(`SELECT `+alertCols+` FROM price_alerts WHERE id = ?`, id.String())
	a, err := scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// FindActiveAlerts returns all alerts still eligible for evaluation:
// active and never triggered, oldest first.
func (s *Storage) FindActiveAlerts() ([]models.PriceAlert, error) {
	rows, err := s.db.Query(`SELECT ` + alertCols + ` FROM price_alerts
		WHERE is_active = 1 AND triggered = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.PriceAlert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// TriggerAlert records the one-shot state transition of a fired alert:
// in a single transaction it creates the notification and flips the
// alert to triggered and inactive. Both effects commit together or
// neither does. Triggering an alert that is missing, inactive, or
// already triggered is an error.
func (s *Storage) TriggerAlert(alertID uuid.UUID, triggeredAt time.Time, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = triggeredAt
	}
	dataJSON, err := json.Marshal(notification.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		UPDATE price_alerts
		SET triggered = 1, triggered_at = ?, is_active = 0
		WHERE id = ? AND is_active = 1 AND triggered = 0`,
		triggeredAt.UnixNano(), alertID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not eligible for trigger: %s", alertID)
	}

	if _, err := tx.Exec(`
		INSERT INTO notifications
			(id, user_id, type, title, message, data, is_read, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		notification.ID.String(), notification.UserID, notification.Type,
		notification.Title, notification.Message, string(dataJSON),
		boolToInt(notification.Read), notification.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return tx.Commit()
}

// Notifications returns all notifications for a user, newest first.
func (s *Storage) Notifications(userID string) ([]models.Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, type, title, message, data, is_read, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var id, dataJSON string
		var isRead int
		var createdAtNano int64
		if err := rows.Scan(&id, &n.UserID, &n.Type, &n.Title, &n.Message,
			&dataJSON, &isRead, &createdAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse notification ID: %w", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &n.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification data: %w", err)
		}
		n.Read = isRead != 0
		n.CreatedAt = time.Unix(0, createdAtNano)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flips a notification's read flag.
func (s *Storage) MarkNotificationRead(id uuid.UUID) error {
	res, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}

const alertCols = `id, user_id, coin_id, coin_name, coin_symbol, condition,
	target_price_usd, is_active, triggered, triggered_at, created_at`

func scanAlert(scan func(...any) error) (*models.PriceAlert, error) {
	var a models.PriceAlert
	var id, target string
	var isActive, triggered int
	var triggeredAt sql.NullInt64
	var createdAtNano int64
	err := scan(
		&id, &a.UserID, &a.CoinID, &a.CoinName, &a.CoinSymbol, &a.Condition,
		&target, &isActive, &triggered, &triggeredAt, &createdAtNano,
	)
	if err != nil {
		return nil, err
	}
	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert ID: %w", err)
	}
	a.TargetPrice, err = decimal.NewFromString(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target price: %w", err)
	}
	a.IsActive = isActive != 0
	a.Triggered = triggered != 0
	if triggeredAt.Valid {
		t := time.Unix(0, triggeredAt.Int64)
		a.TriggeredAt = &t
	}
	a.CreatedAt = time.Unix(0, createdAtNano)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
