package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Alert conditions.
const (
	ConditionAbove = "above"
	ConditionBelow = "below"
)

// NotificationTypePriceAlert tags notifications produced by the alert scanner.
const NotificationTypePriceAlert = "price_alert"

// PriceAlert is a one-shot price threshold watch owned by a user.
// Once triggered it is deactivated and never re-evaluated.
type PriceAlert struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"user_id"`
	CoinID      string          `json:"coin_id"`
	CoinName    string          `json:"coin_name"`
	CoinSymbol  string          `json:"coin_symbol"`
	Condition   string          `json:"condition"`
	TargetPrice decimal.Decimal `json:"target_price_usd"`
	IsActive    bool            `json:"is_active"`
	Triggered   bool            `json:"triggered"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks alert field constraints.
func (a *PriceAlert) Validate() error {
	if a.ID == uuid.Nil {
		return errors.New("alert ID must not be empty")
	}
	if a.UserID == "" {
		return errors.New("alert user ID must not be empty")
	}
	if a.CoinID == "" {
		return errors.New("alert coin ID must not be empty")
	}
	if a.Condition != ConditionAbove && a.Condition != ConditionBelow {
		return errors.New("alert condition must be 'above' or 'below'")
	}
	if !a.TargetPrice.IsPositive() {
		return errors.New("alert target price must be positive")
	}
	return nil
}

// Evaluate reports whether the observed USD price satisfies the alert
// condition. Both conditions are inclusive: an alert at exactly the
// target price fires.
func (a *PriceAlert) Evaluate(price float64) bool {
	p := decimal.NewFromFloat(price)
	switch a.Condition {
	case ConditionAbove:
		return p.Cmp(a.TargetPrice) >= 0
	case ConditionBelow:
		return p.Cmp(a.TargetPrice) <= 0
	}
	return false
}

// NotificationData is the structured payload attached to a notification.
type NotificationData struct {
	CoinID          string  `json:"coin_id"`
	CoinSymbol      string  `json:"coin_symbol"`
	CurrentPriceUSD float64 `json:"current_price_usd"`
	TargetPriceUSD  float64 `json:"target_price_usd"`
	Condition       string  `json:"condition"`
}

// Notification is a user-facing message recorded when an alert fires.
// It is created in the same transaction that flips the alert to its
// terminal state.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"user_id"`
	Type      string           `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      NotificationData `json:"data"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
