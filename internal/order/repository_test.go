package order

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront-be/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrderID = "3f1c2a9e-8b7d-4c6e-9a5f-1d2e3c4b5a69"

var orderRowColumns = []string{
	"id", "user_id", "customer_id", "customer_name", "customer_email", "customer_phone",
	"shipping_address", "subtotal", "gst_5_total", "gst_18_total", "total_gst",
	"shipping_cost", "order_total", "grand_total", "status", "payment_status",
	"payment_method", "transaction_id", "upi_reference", "created_at", "updated_at",
}

var itemRowColumns = []string{
	"id", "order_id", "product_id", "variant_id", "product_name", "variant_name",
	"image_url", "sku", "base_price", "gst_rate", "gst_amount", "unit_price_with_gst",
	"quantity", "item_subtotal", "item_gst_total", "item_total", "customization",
}

func newOrderRow(status, paymentStatus string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderRowColumns).AddRow(
		testOrderID, 7, nil, "Asha Rao", "asha@example.in", "9876543210",
		[]byte(`{"line1":"12 MG Road","city":"Bengaluru","state":"KA","pincode":"560001"}`),
		"500.00", "5.00", "72.00", "77.00",
		"50.00", "627.00", "627.00", status, paymentStatus,
		"phonepe", "TXN-1", nil, now, now,
	)
}

func sampleOrder() *Order {
	items := []Item{
		{ProductID: "p-1", VariantID: "v-1", ProductName: "Mug", VariantName: "Blue", BasePrice: dec("100"), Quantity: 1, GSTCategory: "gst_5"},
		{ProductID: "p-2", VariantID: "v-2", ProductName: "Tee", VariantName: "L", BasePrice: dec("200"), Quantity: 2, GSTCategory: "gst_18"},
	}
	o := &Order{
		ID:     testOrderID,
		UserID: 7,
		Customer: CustomerInfo{
			Name:  "Asha Rao",
			Email: "asha@example.in",
			Phone: "9876543210",
			Address: Address{
				Line1: "12 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001",
			},
		},
		Items: items,
	}
	o.Billing = ComputeBilling(o.Items, DefaultBillingConfig())
	return o
}

func TestRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)
		o := sampleOrder()
		now := time.Now()

		mock.ExpectQuery("INSERT INTO orders").
			WithArgs(testOrderID, uint(7), nil, "Asha Rao", "asha@example.in", "9876543210",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "pending", "pending").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

		err = repo.Create(ctx, o)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), o.Items[1].ID)
		assert.Equal(t, testOrderID, o.Items[0].OrderID)
		assert.Equal(t, StatusPending, o.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Item insert failure deletes order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)
		now := time.Now()

		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnError(errors.New("fk violation"))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id = $1")).
			WithArgs(testOrderID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Create(ctx, sampleOrder())
		assert.ErrorIs(t, err, apperr.ErrDatabase)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Order insert failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO orders").WillReturnError(errors.New("billing identity"))

		err = NewRepository(db).Create(ctx, sampleOrder())
		assert.ErrorIs(t, err, apperr.ErrDatabase)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Success with items", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT .* FROM orders WHERE id::text = \\$1").
			WithArgs(testOrderID).
			WillReturnRows(newOrderRow("pending", "initiated"))
		mock.ExpectQuery("FROM order_items").
			WithArgs(testOrderID).
			WillReturnRows(sqlmock.NewRows(itemRowColumns).AddRow(
				1, testOrderID, "p-1", "v-1", "Mug", "Blue",
				nil, "MUG-BL", "100.00", "5.00", "5.00", "105.00",
				1, "100.00", "5.00", "105.00", []byte(`{"engraving":"A"}`),
			))

		o, err := NewRepository(db).GetByID(ctx, testOrderID)
		require.NoError(t, err)
		assert.Equal(t, uint(7), o.UserID)
		assert.Equal(t, PaymentInitiated, o.PaymentStatus)
		assert.True(t, dec("627").Equal(o.Billing.GrandTotal))
		assert.Equal(t, "560001", o.Customer.Address.Pincode)
		require.NotNil(t, o.TransactionID)
		assert.Equal(t, "TXN-1", *o.TransactionID)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "MUG-BL", *o.Items[0].SKU)
		assert.JSONEq(t, `{"engraving":"A"}`, string(o.Items[0].Customization))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT .* FROM orders").
			WillReturnRows(sqlmock.NewRows(orderRowColumns))

		_, err = NewRepository(db).GetByID(ctx, testOrderID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestRepository_GetByTransactionID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery("FROM orders WHERE transaction_id = \\$1").
		WithArgs("order_Rzp1").
		WillReturnRows(newOrderRow("pending", "initiated"))
	o, err := repo.GetByTransactionID(context.Background(), "order_Rzp1")
	require.NoError(t, err)
	assert.Equal(t, testOrderID, o.ID)

	mock.ExpectQuery("FROM orders WHERE transaction_id").
		WillReturnRows(sqlmock.NewRows(orderRowColumns))
	_, err = repo.GetByTransactionID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepository_ConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("MarkPaymentInitiated", func(t *testing.T) {
		mock.ExpectExec("UPDATE orders SET payment_method = \\$2").
			WithArgs(testOrderID, "phonepe", "TXN-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkPaymentInitiated(ctx, testOrderID, MethodPhonePe, "TXN-1")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ApplySettlement applies once", func(t *testing.T) {
		out := Outcome{
			Status:        StatusConfirmed,
			PaymentStatus: PaymentCompleted,
			PaymentMethod: MethodRazorpay,
			TransactionID: "order_Rzp1",
		}
		mock.ExpectExec("UPDATE orders SET status = \\$2").
			WithArgs(testOrderID, "confirmed", "completed", "razorpay", "order_Rzp1", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status = \\$2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.ApplySettlement(ctx, testOrderID, out)
		assert.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ApplySettlement(ctx, testOrderID, out)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Cancel", func(t *testing.T) {
		mock.ExpectExec("UPDATE orders SET status = 'cancelled'").
			WithArgs(testOrderID, uint(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Cancel(ctx, testOrderID, 7)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectExec("UPDATE orders").WillReturnError(errors.New("conn reset"))

		_, err := repo.Cancel(ctx, testOrderID, 7)
		assert.ErrorIs(t, err, apperr.ErrDatabase)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
