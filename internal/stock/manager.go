package stock

import (
	"context"
	"errors"
	"time"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"

	"go.uber.org/zap"
)

// Manager is the stock reservation API used by order intake, settlement and
// cancellation.
type Manager struct {
	repo    Repository
	ttl     time.Duration
	metrics *metrics.Reservations
}

func NewManager(repo Repository, ttl time.Duration, m *metrics.Reservations) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if m == nil {
		m = &metrics.Reservations{}
	}
	return &Manager{repo: repo, ttl: ttl, metrics: m}
}

func (m *Manager) log(ctx context.Context, method string) *zap.Logger {
	return logger.FromCtx(ctx).With(
		zap.String("layer", "stock"),
		zap.String("method", method),
	)
}

// ReserveStock holds quantity units of a variant. It fails with
// InsufficientStock when quantity exceeds what is available and NotFound when
// the variant does not exist.
func (m *Manager) ReserveStock(ctx context.Context, req ReserveRequest) (string, error) {
	log := m.log(ctx, "ReserveStock").With(
		zap.String("variant_id", req.VariantID),
		zap.Int("quantity", req.Quantity),
	)

	if req.VariantID == "" {
		return "", apperr.Validation("variant id is required")
	}
	if req.Quantity <= 0 {
		return "", apperr.Validation("quantity must be greater than zero")
	}

	id, err := m.repo.Reserve(ctx, req, m.ttl)
	if err != nil {
		m.metrics.Rejected.Inc()
		log.Warn("reservation rejected", zap.Error(err))
		return "", err
	}

	m.metrics.Reserved.Inc()
	log.Info("stock reserved", zap.String("reservation_id", id))
	return id, nil
}

// ConfirmReservation turns a hold into a permanent decrement. Confirming an
// already-confirmed reservation succeeds without decrementing again.
func (m *Manager) ConfirmReservation(ctx context.Context, reservationID string) (bool, error) {
	ok, err := m.repo.Confirm(ctx, reservationID)
	if err != nil {
		m.log(ctx, "ConfirmReservation").Warn("confirm failed",
			zap.String("reservation_id", reservationID),
			zap.Error(err),
		)
		return false, err
	}
	m.metrics.Confirmed.Inc()
	return ok, nil
}

// ConfirmMultipleReservations is all-or-nothing: one failure leaves every
// reservation in the batch unconfirmed.
func (m *Manager) ConfirmMultipleReservations(ctx context.Context, reservationIDs []string) (int, error) {
	if len(reservationIDs) == 0 {
		return 0, nil
	}

	n, err := m.repo.ConfirmMultiple(ctx, reservationIDs)
	if err != nil {
		m.log(ctx, "ConfirmMultipleReservations").Warn("batch confirm failed",
			zap.Strings("reservation_ids", reservationIDs),
			zap.Error(err),
		)
		return 0, err
	}
	m.metrics.Confirmed.Add(uint64(n))
	return n, nil
}

// CancelReservation releases a hold. It never fails the caller; errors are
// logged and reported as false.
func (m *Manager) CancelReservation(ctx context.Context, reservationID string) bool {
	ok, err := m.repo.Cancel(ctx, reservationID)
	if err != nil {
		m.log(ctx, "CancelReservation").Warn("cancel failed",
			zap.String("reservation_id", reservationID),
			zap.Error(err),
		)
		return false
	}
	if ok {
		m.metrics.Released.Inc()
	}
	return ok
}

func (m *Manager) ExtendReservation(ctx context.Context, reservationID string, minutes int) (time.Time, error) {
	if minutes <= 0 || minutes > MaxExtendMinutes {
		return time.Time{}, apperr.Validation("extension must be between 1 and %d minutes", MaxExtendMinutes)
	}
	return m.repo.Extend(ctx, reservationID, minutes)
}

// GetAvailableStock returns 0 on any error so callers never oversell.
func (m *Manager) GetAvailableStock(ctx context.Context, variantID string) int {
	n, err := m.repo.AvailableStock(ctx, variantID)
	if err != nil {
		m.log(ctx, "GetAvailableStock").Error("available stock lookup failed",
			zap.String("variant_id", variantID),
			zap.Error(err),
		)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func (m *Manager) CheckReservationStatus(ctx context.Context, reservationID string) (*ReservationStatus, error) {
	return m.repo.Status(ctx, reservationID)
}

// ConfirmOrderReservations confirms every live reservation of an order. It
// tries one atomic batch first; if the batch fails (e.g. one hold expired) it
// confirms the rest one by one so a paid order keeps as much stock as
// possible. Returns the number confirmed and the first error seen. An order
// whose holds all lapsed yields an Expired error.
func (m *Manager) ConfirmOrderReservations(ctx context.Context, orderID string) (int, error) {
	log := m.log(ctx, "ConfirmOrderReservations").With(zap.String("order_id", orderID))

	reservations, err := m.repo.ListByOrder(ctx, orderID)
	if err != nil {
		log.Error("failed to list reservations", zap.Error(err))
		return 0, err
	}

	var ids []string
	lapsed := 0
	for _, r := range reservations {
		switch r.Status {
		case StatusActive, StatusConfirmed:
			ids = append(ids, r.ID)
		case StatusExpired, StatusCancelled:
			lapsed++
		}
	}
	if len(ids) == 0 {
		if lapsed > 0 {
			log.Warn("order reservations lapsed before confirmation", zap.Int("lapsed", lapsed))
			return 0, apperr.New(apperr.KindExpired, "order %s has no live reservations (%d expired or cancelled)", orderID, lapsed)
		}
		log.Warn("order has no reservations to confirm")
		return 0, nil
	}

	n, batchErr := m.ConfirmMultipleReservations(ctx, ids)
	if batchErr == nil {
		log.Info("order reservations confirmed", zap.Int("count", n))
		return n, nil
	}

	confirmed := 0
	var firstErr error
	for _, id := range ids {
		if _, err := m.ConfirmReservation(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		confirmed++
	}

	log.Warn("order reservations partially confirmed",
		zap.Int("confirmed", confirmed),
		zap.Int("total", len(ids)),
		zap.Error(firstErr),
	)
	return confirmed, firstErr
}

// ReleaseOrderReservations cancels every active reservation of an order,
// best-effort. Returns how many were released.
func (m *Manager) ReleaseOrderReservations(ctx context.Context, orderID string) int {
	log := m.log(ctx, "ReleaseOrderReservations").With(zap.String("order_id", orderID))

	reservations, err := m.repo.ListByOrder(ctx, orderID)
	if err != nil {
		log.Warn("failed to list reservations", zap.Error(err))
		return 0
	}

	released := 0
	for _, r := range reservations {
		if r.Status != StatusActive {
			continue
		}
		if m.CancelReservation(ctx, r.ID) {
			released++
		}
	}

	log.Info("order reservations released", zap.Int("released", released))
	return released
}

// ReleaseAll cancels the given reservations, best-effort.
func (m *Manager) ReleaseAll(ctx context.Context, reservationIDs []string) {
	for _, id := range reservationIDs {
		m.CancelReservation(ctx, id)
	}
}

// RunSweeper marks overdue active reservations expired every interval until
// ctx is done. Availability already ignores them; this keeps the table in
// step.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	log := m.log(ctx, "RunSweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			m.sweep(ctx, log)
		}
	}
}

func (m *Manager) sweep(ctx context.Context, log *zap.Logger) {
	n, err := m.repo.ExpireStale(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("failed to expire reservations", zap.Error(err))
		}
		return
	}
	if n > 0 {
		m.metrics.Expired.Add(uint64(n))
		log.Info("expired stale reservations", zap.Int("count", n))
	}
}
