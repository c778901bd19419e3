package stock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront-be/internal/apperr"

	"github.com/lib/pq"
)

// Repository calls the reservation procedures. Per-variant atomicity lives in
// the procedures (row lock on the variant), not here.
type Repository interface {
	Reserve(ctx context.Context, req ReserveRequest, ttl time.Duration) (string, error)
	Confirm(ctx context.Context, reservationID string) (bool, error)
	ConfirmMultiple(ctx context.Context, reservationIDs []string) (int, error)
	Cancel(ctx context.Context, reservationID string) (bool, error)
	Extend(ctx context.Context, reservationID string, minutes int) (time.Time, error)
	AvailableStock(ctx context.Context, variantID string) (int, error)
	Status(ctx context.Context, reservationID string) (*ReservationStatus, error)
	ExpireStale(ctx context.Context) (int, error)
	ListByOrder(ctx context.Context, orderID string) ([]Reservation, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (r *repository) Reserve(ctx context.Context, req ReserveRequest, ttl time.Duration) (string, error) {
	minutes := int(ttl / time.Minute)
	if minutes <= 0 {
		minutes = int(DefaultTTL / time.Minute)
	}

	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT reserve_variant_stock($1, $2, $3, $4, $5)`,
		req.VariantID, req.Quantity, int64(req.UserID), nullable(req.OrderID), minutes,
	).Scan(&id)
	if err != nil {
		return "", mapError(err, "reserve stock")
	}
	return id, nil
}

func (r *repository) Confirm(ctx context.Context, reservationID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT confirm_stock_reservation($1)`, reservationID,
	).Scan(&ok)
	if err != nil {
		return false, mapError(err, "confirm reservation")
	}
	return ok, nil
}

func (r *repository) ConfirmMultiple(ctx context.Context, reservationIDs []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT confirm_multiple_reservations($1::uuid[])`, pq.Array(reservationIDs),
	).Scan(&n)
	if err != nil {
		return 0, mapError(err, "confirm reservations")
	}
	return n, nil
}

func (r *repository) Cancel(ctx context.Context, reservationID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT cancel_reservation($1)`, reservationID,
	).Scan(&ok)
	if err != nil {
		return false, mapError(err, "cancel reservation")
	}
	return ok, nil
}

func (r *repository) Extend(ctx context.Context, reservationID string, minutes int) (time.Time, error) {
	var expiry time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT extend_reservation($1, $2)`, reservationID, minutes,
	).Scan(&expiry)
	if err != nil {
		return time.Time{}, mapError(err, "extend reservation")
	}
	return expiry, nil
}

func (r *repository) AvailableStock(ctx context.Context, variantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT get_available_stock($1)`, variantID,
	).Scan(&n)
	if err != nil {
		return 0, mapError(err, "available stock")
	}
	return n, nil
}

func (r *repository) Status(ctx context.Context, reservationID string) (*ReservationStatus, error) {
	s := ReservationStatus{ID: reservationID}
	err := r.db.QueryRowContext(ctx,
		`SELECT status, expires_at, quantity, variant_id FROM check_reservation_status($1)`,
		reservationID,
	).Scan(&s.Status, &s.ExpiresAt, &s.Quantity, &s.VariantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("reservation %s not found", reservationID)
	}
	if err != nil {
		return nil, mapError(err, "reservation status")
	}
	return &s, nil
}

func (r *repository) ExpireStale(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT expire_stale_reservations()`).Scan(&n); err != nil {
		return 0, mapError(err, "expire reservations")
	}
	return n, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, variant_id, user_id, order_id, quantity, status, expires_at, created_at
		FROM stock_reservations
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, mapError(err, "list reservations")
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		var userID int64
		var order sql.NullString
		if err := rows.Scan(
			&res.ID, &res.VariantID, &userID, &order,
			&res.Quantity, &res.Status, &res.ExpiresAt, &res.CreatedAt,
		); err != nil {
			return nil, apperr.Database(err, "scan reservation")
		}
		res.UserID = uint(userID)
		if order.Valid {
			res.OrderID = &order.String
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err, "iterate reservations")
	}
	return out, nil
}
