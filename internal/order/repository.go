package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// Create inserts the order and its items. When an item insert fails the
	// order row is deleted again before the error is returned.
	Create(ctx context.Context, o *Order) error
	Delete(ctx context.Context, orderID string) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	GetItems(ctx context.Context, orderID string) ([]Item, error)

	// The conditional updates below report false when the order was not in a
	// state that allows the transition. They never move an order backwards.
	MarkPaymentInitiated(ctx context.Context, orderID string, method PaymentMethod, transactionID string) (bool, error)
	ApplySettlement(ctx context.Context, orderID string, out Outcome) (bool, error)
	Cancel(ctx context.Context, orderID string, userID uint) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, user_id, customer_id, customer_name, customer_email, customer_phone,
	shipping_address, subtotal, gst_5_total, gst_18_total, total_gst,
	shipping_cost, order_total, grand_total, status, payment_status,
	payment_method, transaction_id, upi_reference, created_at, updated_at
`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var (
		o                            Order
		customerID, method, txn, upi sql.NullString
		address                      []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &customerID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&address, &o.Billing.Subtotal, &o.Billing.GST5Total, &o.Billing.GST18Total, &o.Billing.TotalGST,
		&o.Billing.ShippingCost, &o.Billing.OrderTotal, &o.Billing.GrandTotal, &o.Status, &o.PaymentStatus,
		&method, &txn, &upi, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.Customer.Address); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	if customerID.Valid {
		o.Customer.CustomerID = &customerID.String
	}
	if method.Valid {
		o.PaymentMethod = &method.String
	}
	if txn.Valid {
		o.TransactionID = &txn.String
	}
	if upi.Valid {
		o.UPIReference = &upi.String
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
	)

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	log = log.With(zap.String("order_id", o.ID))

	address, err := json.Marshal(o.Customer.Address)
	if err != nil {
		return apperr.Validation("invalid shipping address")
	}

	b := o.Billing
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO orders (
			id, user_id, customer_id, customer_name, customer_email, customer_phone,
			shipping_address, subtotal, gst_5_total, gst_18_total, total_gst,
			shipping_cost, order_total, grand_total, status, payment_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at
	`,
		o.ID, o.UserID, o.Customer.CustomerID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		address, b.Subtotal, b.GST5Total, b.GST18Total, b.TotalGST,
		b.ShippingCost, b.OrderTotal, b.GrandTotal, o.Status, o.PaymentStatus,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return apperr.Database(err, "failed to create order")
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := r.insertItem(ctx, it); err != nil {
			log.Error("failed to insert order item, rolling back order",
				zap.String("variant_id", it.VariantID),
				zap.Error(err),
			)
			if delErr := r.Delete(ctx, o.ID); delErr != nil {
				log.Error("compensating delete failed", zap.Error(delErr))
			}
			return apperr.Database(err, "failed to create order items")
		}
	}

	log.Info("order created", zap.Int("items", len(o.Items)))
	return nil
}

func (r *repository) insertItem(ctx context.Context, it *Item) error {
	var customization any
	if len(it.Customization) > 0 {
		customization = []byte(it.Customization)
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO order_items (
			order_id, product_id, variant_id, product_name, variant_name,
			image_url, sku, base_price, gst_rate, gst_amount, unit_price_with_gst,
			quantity, item_subtotal, item_gst_total, item_total, customization
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`,
		it.OrderID, it.ProductID, it.VariantID, it.ProductName, it.VariantName,
		it.ImageURL, it.SKU, it.BasePrice, it.GSTRate, it.GSTAmount, it.UnitPriceWithGST,
		it.Quantity, it.ItemSubtotal, it.ItemGSTTotal, it.ItemTotal, customization,
	).Scan(&it.ID)
}

func (r *repository) Delete(ctx context.Context, orderID string) error {
	// order_items cascade.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return apperr.Database(err, "failed to delete order")
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetByID"),
		zap.String("order_id", orderID),
	)

	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id::text = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if err != nil {
		log.Error("failed to fetch order", zap.Error(err))
		return nil, apperr.Database(err, "failed to fetch order")
	}

	items, err := r.GetItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *repository) GetByTransactionID(ctx context.Context, transactionID string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE transaction_id = $1`, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no order for transaction %s", transactionID)
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to fetch order by transaction",
			zap.String("layer", "repository"),
			zap.String("method", "GetByTransactionID"),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		return nil, apperr.Database(err, "failed to fetch order")
	}
	return o, nil
}

func (r *repository) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, product_name, variant_name,
			image_url, sku, base_price, gst_rate, gst_amount, unit_price_with_gst,
			quantity, item_subtotal, item_gst_total, item_total, customization
		FROM order_items
		WHERE order_id::text = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, apperr.Database(err, "failed to fetch order items")
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it         Item
			image, sku sql.NullString
			custom     []byte
		)
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.ProductName, &it.VariantName,
			&image, &sku, &it.BasePrice, &it.GSTRate, &it.GSTAmount, &it.UnitPriceWithGST,
			&it.Quantity, &it.ItemSubtotal, &it.ItemGSTTotal, &it.ItemTotal, &custom,
		); err != nil {
			return nil, apperr.Database(err, "failed to scan order item")
		}
		if image.Valid {
			it.ImageURL = &image.String
		}
		if sku.Valid {
			it.SKU = &sku.String
		}
		if len(custom) > 0 {
			it.Customization = json.RawMessage(custom)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err, "failed to read order items")
	}
	return items, nil
}

func (r *repository) MarkPaymentInitiated(ctx context.Context, orderID string, method PaymentMethod, transactionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_method = $2,
			transaction_id = $3,
			payment_status = 'initiated',
			updated_at = NOW()
		WHERE id::text = $1
			AND status = 'pending'
			AND payment_status IN ('pending', 'initiated')
	`, orderID, string(method), transactionID)
	if err != nil {
		return false, apperr.Database(err, "failed to annotate order payment")
	}
	return affected(res)
}

func (r *repository) ApplySettlement(ctx context.Context, orderID string, out Outcome) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
			payment_status = $3,
			payment_method = $4,
			transaction_id = $5,
			upi_reference = COALESCE($6, upi_reference),
			updated_at = NOW()
		WHERE id::text = $1
			AND status = 'pending'
			AND payment_status <> 'completed'
	`, orderID, string(out.Status), string(out.PaymentStatus), string(out.PaymentMethod), out.TransactionID, out.UPIReference)
	if err != nil {
		return false, apperr.Database(err, "failed to settle order")
	}
	return affected(res)
}

func (r *repository) Cancel(ctx context.Context, orderID string, userID uint) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = 'cancelled',
			payment_status = 'failed',
			updated_at = NOW()
		WHERE id::text = $1
			AND user_id = $2
			AND status = 'pending'
			AND payment_status <> 'completed'
	`, orderID, userID)
	if err != nil {
		return false, apperr.Database(err, "failed to cancel order")
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Database(err, "failed to read affected rows")
	}
	return n > 0, nil
}
