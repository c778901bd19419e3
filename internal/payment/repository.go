package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

// ErrDuplicate reports that a ledger row for the gateway transaction already
// exists.
var ErrDuplicate = errors.New("payment already recorded")

// Repository is the append-only payment ledger.
type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	GetByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `
	id, order_id, user_id, gateway, merchant_transaction_id, gateway_transaction_id,
	provider_reference_id, status, amount, raw_response, verified, received_at, completed_at
`

func scanPayment(row interface{ Scan(...any) error }) (*Payment, error) {
	var (
		p                Payment
		merchantTxn, ref sql.NullString
		raw              []byte
		completedAt      sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Gateway, &merchantTxn, &p.GatewayTransactionID,
		&ref, &p.Status, &p.Amount, &raw, &p.Verified, &p.ReceivedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if merchantTxn.Valid {
		p.MerchantTransactionID = &merchantTxn.String
	}
	if ref.Valid {
		p.ProviderReferenceID = &ref.String
	}
	if len(raw) > 0 {
		p.RawResponse = raw
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

// Insert appends a ledger row. A row for the same gateway transaction id
// yields ErrDuplicate.
func (r *repository) Insert(ctx context.Context, p *Payment) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "payment.Insert"),
		zap.String("gateway_transaction_id", p.GatewayTransactionID),
	)

	var raw any
	if len(p.RawResponse) > 0 {
		raw = []byte(p.RawResponse)
	}
	if p.Status == StatusCompleted && p.CompletedAt == nil {
		now := time.Now()
		p.CompletedAt = &now
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (
			order_id, user_id, gateway, merchant_transaction_id, gateway_transaction_id,
			provider_reference_id, status, amount, raw_response, verified, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, received_at
	`,
		p.OrderID, p.UserID, string(p.Gateway), p.MerchantTransactionID, p.GatewayTransactionID,
		p.ProviderReferenceID, string(p.Status), p.Amount, raw, p.Verified, p.CompletedAt,
	).Scan(&p.ID, &p.ReceivedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			log.Info("payment already recorded")
			return ErrDuplicate
		}
		log.Error("failed to record payment", zap.Error(err))
		return apperr.Database(err, "failed to record payment")
	}
	return nil
}

func (r *repository) GetByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_transaction_id = $1`, gatewayTransactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no payment for transaction %s", gatewayTransactionID)
	}
	if err != nil {
		return nil, apperr.Database(err, "failed to fetch payment")
	}
	return p, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id::text = $1 ORDER BY received_at`, orderID)
	if err != nil {
		return nil, apperr.Database(err, "failed to list payments")
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, apperr.Database(err, "failed to scan payment")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err, "failed to read payments")
	}
	return out, nil
}
