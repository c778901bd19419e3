package payment

import (
	"context"
	"testing"
	"time"

	"storefront-be/internal/apperr"
	"storefront-be/internal/async"
	"storefront-be/internal/order"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderReader struct {
	mock.Mock
}

func (m *MockOrderReader) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderReader) MarkPaymentInitiated(ctx context.Context, orderID string, method order.PaymentMethod, txnID string) (bool, error) {
	args := m.Called(ctx, orderID, method, txnID)
	return args.Bool(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
	provider Provider
}

func (m *MockGateway) Provider() Provider { return m.provider }

func (m *MockGateway) CreateGatewayOrder(ctx context.Context, req CreateRequest) (*GatewayOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewayOrder), args.Error(1)
}

func (m *MockGateway) VerifyNotification(ctx context.Context, n Notification) (*Verified, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Verified), args.Error(1)
}

func pendingOrder() *order.Order {
	return &order.Order{
		ID:            testOrderID,
		UserID:        7,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		Billing:       order.Billing{GrandTotal: decimal.RequireFromString("627")},
		Customer:      order.CustomerInfo{Name: "Asha", Phone: "9876543210"},
	}
}

func TestBridge_CreateGatewayOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("Amount comes from the stored order", func(t *testing.T) {
		orders := new(MockOrderReader)
		gw := &MockGateway{provider: ProviderRazorpay}
		runner := async.NewRunner(2, time.Second)
		bridge := NewBridge(orders, runner, gw)

		orders.On("GetByID", ctx, testOrderID).Return(pendingOrder(), nil)
		gw.On("CreateGatewayOrder", ctx, mock.MatchedBy(func(r CreateRequest) bool {
			return r.Amount.Equal(decimal.RequireFromString("627")) && r.OrderID == testOrderID
		})).Return(&GatewayOrder{Provider: ProviderRazorpay, GatewayOrderID: "order_Rzp1", TransactionID: "order_Rzp1", AmountPaise: 62700}, nil)
		orders.On("MarkPaymentInitiated", mock.Anything, testOrderID, order.MethodRazorpay, "order_Rzp1").Return(true, nil)

		res, err := bridge.CreateGatewayOrder(ctx, ProviderRazorpay, testOrderID, 7)
		runner.Wait()

		require.NoError(t, err)
		assert.Equal(t, "order_Rzp1", res.GatewayOrderID)
		orders.AssertExpectations(t)
	})

	t.Run("Annotation failure does not fail initiation", func(t *testing.T) {
		orders := new(MockOrderReader)
		gw := &MockGateway{provider: ProviderPhonePe}
		runner := async.NewRunner(2, time.Second)
		bridge := NewBridge(orders, runner, gw)

		orders.On("GetByID", ctx, testOrderID).Return(pendingOrder(), nil)
		gw.On("CreateGatewayOrder", ctx, mock.Anything).Return(&GatewayOrder{TransactionID: "TXN"}, nil)
		orders.On("MarkPaymentInitiated", mock.Anything, testOrderID, order.MethodPhonePe, "TXN").
			Return(false, apperr.Database(assert.AnError, "failed to annotate order payment"))

		_, err := bridge.CreateGatewayOrder(ctx, ProviderPhonePe, testOrderID, 7)
		runner.Wait()

		assert.NoError(t, err)
		select {
		case te := <-runner.Errors():
			assert.Equal(t, "order.mark_payment_initiated", te.Name)
		default:
			t.Fatal("expected annotation failure to be reported")
		}
	})

	t.Run("Settled order is refused", func(t *testing.T) {
		orders := new(MockOrderReader)
		gw := &MockGateway{provider: ProviderPhonePe}
		bridge := NewBridge(orders, async.NewRunner(1, time.Second), gw)

		o := pendingOrder()
		o.Status = order.StatusConfirmed
		o.PaymentStatus = order.PaymentCompleted
		orders.On("GetByID", ctx, testOrderID).Return(o, nil)

		_, err := bridge.CreateGatewayOrder(ctx, ProviderPhonePe, testOrderID, 7)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		gw.AssertNotCalled(t, "CreateGatewayOrder", mock.Anything, mock.Anything)
	})

	t.Run("Foreign order", func(t *testing.T) {
		orders := new(MockOrderReader)
		gw := &MockGateway{provider: ProviderPhonePe}
		bridge := NewBridge(orders, async.NewRunner(1, time.Second), gw)
		orders.On("GetByID", ctx, testOrderID).Return(pendingOrder(), nil)

		_, err := bridge.CreateGatewayOrder(ctx, ProviderPhonePe, testOrderID, 8)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("Provider not enabled", func(t *testing.T) {
		bridge := NewBridge(new(MockOrderReader), async.NewRunner(1, time.Second))

		_, err := bridge.CreateGatewayOrder(ctx, ProviderRazorpay, testOrderID, 7)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})

	t.Run("Gateway error is returned", func(t *testing.T) {
		orders := new(MockOrderReader)
		gw := &MockGateway{provider: ProviderPhonePe}
		bridge := NewBridge(orders, async.NewRunner(1, time.Second), gw)
		orders.On("GetByID", ctx, testOrderID).Return(pendingOrder(), nil)
		gw.On("CreateGatewayOrder", ctx, mock.Anything).Return(nil, apperr.Gateway([]byte(`{}`), "phonepe returned status 500"))

		_, err := bridge.CreateGatewayOrder(ctx, ProviderPhonePe, testOrderID, 7)
		assert.ErrorIs(t, err, apperr.ErrGateway)
		orders.AssertNotCalled(t, "MarkPaymentInitiated", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
