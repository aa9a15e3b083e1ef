// Package worker provides async compliance rechecks driven by the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/manager"
)

// Worker consumes recheck requests and re-runs compliance plus enforcement
// for the named booking. Schedulers and external services publish requests
// when a grace period nears expiry or facts change.
type Worker struct {
	bus     domain.EventBus
	manager *manager.Manager

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount bounds concurrent recheck processing.
	WorkerCount int
}

// NewWorker creates a new async recheck worker.
func NewWorker(bus domain.EventBus, mgr *manager.Manager, cfg Config) *Worker {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		manager: mgr,
		sem:     make(chan struct{}, cfg.WorkerCount),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the recheck topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRecheckRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("recheck worker started",
		"topic", domain.TopicRecheckRequested,
	)
	return nil
}

// RecheckMessage is the payload of a recheck request.
type RecheckMessage struct {
	BookingID string `json:"bookingId"`
	ProductID string `json:"productId,omitempty"`
	RenterID  string `json:"renterId,omitempty"`
	Enforce   bool   `json:"enforce"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	w.sem <- struct{}{}
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.process(ctx, msg)
	}()
	return nil
}

// process re-runs compliance for the booking and, when requested, derives
// enforcement actions from the fresh result.
func (w *Worker) process(ctx context.Context, msg *domain.Message) {
	start := time.Now()

	var req RecheckMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse recheck message",
			"message_id", msg.ID,
			"error", err,
		)
		return
	}
	if req.BookingID == "" {
		slog.Error("recheck message missing bookingId", "message_id", msg.ID)
		return
	}

	productID, renterID := req.ProductID, req.RenterID
	if productID == "" || renterID == "" {
		existing, err := w.manager.GetComplianceStatus(ctx, req.BookingID)
		if err != nil {
			slog.Error("recheck lookup failed",
				"booking_id", req.BookingID,
				"error", err,
			)
			return
		}
		productID, renterID = existing.ProductID, existing.RenterID
	}

	check, err := w.manager.CheckCompliance(ctx, req.BookingID, productID, renterID, true)
	if err != nil {
		slog.Error("recheck failed",
			"booking_id", req.BookingID,
			"error", err,
		)
		return
	}

	violations := 0
	if req.Enforce && check.Status != domain.StatusCompliant && check.Status != domain.StatusExempt {
		outcome, err := w.manager.TriggerEnforcement(ctx, req.BookingID)
		if err != nil {
			slog.Error("recheck enforcement failed",
				"booking_id", req.BookingID,
				"error", err,
			)
			return
		}
		violations = outcome.ViolationsRecorded
	}

	slog.Info("booking rechecked",
		"booking_id", req.BookingID,
		"status", check.Status,
		"violations_recorded", violations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("recheck worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
