// Package alerts implements the periodic price-alert evaluation job.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cryptotracker/core/internal/logger"
	"github.com/cryptotracker/core/internal/models"

	"github.com/google/uuid"
)

// Store is the persistence port the scanner needs. TriggerAlert must be
// atomic: the notification and the alert state flip commit together or
// not at all.
type Store interface {
	FindActiveAlerts() ([]models.PriceAlert, error)
	TriggerAlert(alertID uuid.UUID, triggeredAt time.Time, notification *models.Notification) error
}

// PriceSource resolves the current USD price for a coin. A nil price
// with a nil error means the price is unresolvable and the alert is
// left untouched.
type PriceSource interface {
	CurrentPrice(ctx context.Context, coinID string) (*float64, error)
}

// Notifier forwards fired alerts to an external channel. Optional;
// forwarding failures never affect alert state.
type Notifier interface {
	SendPriceAlert(n *models.Notification) error
}

// Report summarizes one scan pass. Per-alert failures are collected
// here instead of aborting the batch.
type Report struct {
	Scanned int
	Fired   int
	Skipped int
	Errors  []error
}

// Scanner evaluates active alerts against current prices on a fixed
// interval.
type Scanner struct {
	store    Store
	prices   PriceSource
	notifier Notifier // may be nil
	interval time.Duration
	running  atomic.Bool
}

// New creates a scanner. notifier may be nil to disable forwarding.
func New(store Store, prices PriceSource, notifier Notifier, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scanner{
		store:    store,
		prices:   prices,
		notifier: notifier,
		interval: interval,
	}
}

// Run drives Scan on a ticker until ctx is cancelled, with an immediate
// first pass.
func (s *Scanner) Run(ctx context.Context) {
	s.Scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Alert scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan runs one evaluation pass over all active untriggered alerts.
// Overlapping invocations are skipped rather than serialized: the
// one-shot state would make overlap harmless, but skipping avoids
// duplicate upstream calls for the same batch.
func (s *Scanner) Scan(ctx context.Context) Report {
	if !s.running.CompareAndSwap(false, true) {
		logger.Debug("Alert scan already running, skipping this invocation")
		return Report{}
	}
	defer s.running.Store(false)

	var report Report

	alerts, err := s.store.FindActiveAlerts()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("failed to list active alerts: %w", err))
		logger.Error("Alert scan aborted: %v", err)
		return report
	}
	report.Scanned = len(alerts)

	for i := range alerts {
		alert := &alerts[i]
		if err := s.processAlert(ctx, alert, &report); err != nil {
			// One alert's failure never aborts the rest of the batch.
			report.Errors = append(report.Errors, fmt.Errorf("alert %s (%s): %w", alert.ID, alert.CoinID, err))
			logger.Warn("Failed to process alert %s (%s): %v", alert.ID, alert.CoinID, err)
		}
	}

	logger.Info("Alert scan complete: %d scanned, %d fired, %d skipped, %d errors",
		report.Scanned, report.Fired, report.Skipped, len(report.Errors))
	return report
}

func (s *Scanner) processAlert(ctx context.Context, alert *models.PriceAlert, report *Report) error {
	price, err := s.prices.CurrentPrice(ctx, alert.CoinID)
	if err != nil {
		return fmt.Errorf("failed to resolve price: %w", err)
	}
	if price == nil {
		report.Skipped++
		return nil
	}
	if !alert.Evaluate(*price) {
		return nil
	}

	now := time.Now()
	notification := buildNotification(alert, *price, now)
	if err := s.store.TriggerAlert(alert.ID, now, notification); err != nil {
		return fmt.Errorf("failed to trigger: %w", err)
	}
	report.Fired++
	logger.Info("Alert %s fired: %s %s $%s at $%.2f",
		alert.ID, alert.CoinID, alert.Condition, alert.TargetPrice.String(), *price)

	if s.notifier != nil {
		if err := s.notifier.SendPriceAlert(notification); err != nil {
			logger.Warn("Failed to forward notification for alert %s: %v", alert.ID, err)
		}
	}
	return nil
}

func buildNotification(alert *models.PriceAlert, price float64, now time.Time) *models.Notification {
	symbol := strings.ToUpper(alert.CoinSymbol)
	target := alert.TargetPrice.InexactFloat64()
	return &models.Notification{
		ID:      uuid.New(),
		UserID:  alert.UserID,
		Type:    models.NotificationTypePriceAlert,
		Title:   fmt.Sprintf("Price alert - %s", symbol),
		Message: fmt.Sprintf("%s (%s) hit $%.2f (target: %s $%.2f)", alert.CoinName, symbol, price, alert.Condition, target),
		Data: models.NotificationData{
			CoinID:          alert.CoinID,
			CoinSymbol:      alert.CoinSymbol,
			CurrentPriceUSD: price,
			TargetPriceUSD:  target,
			Condition:       alert.Condition,
		},
		Read:      false,
		CreatedAt: now,
	}
}
