package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodPhonePe  PaymentMethod = "phonepe"
	MethodRazorpay PaymentMethod = "razorpay"
)

type Address struct {
	Line1   string `json:"line1" validate:"required,max=200"`
	Line2   string `json:"line2,omitempty" validate:"max=200"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	Pincode string `json:"pincode" validate:"required,len=6,numeric"`
}

type CustomerInfo struct {
	CustomerID *string `json:"customer_id,omitempty" validate:"omitempty,max=64"`
	Name       string  `json:"name" validate:"required,min=2,max=120"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      string  `json:"phone" validate:"required,in_mobile"`
	Address    Address `json:"address" validate:"required"`
}

type CartItem struct {
	VariantID     string          `json:"variant_id"`
	Quantity      int             `json:"quantity"`
	Customization json.RawMessage `json:"customization,omitempty"`
}

type CreateOrderInput struct {
	UserID   uint
	Items    []CartItem
	Customer CustomerInfo
}

// Billing is the order's frozen money snapshot.
type Billing struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	GST5Total    decimal.Decimal `json:"gst_5_total"`
	GST18Total   decimal.Decimal `json:"gst_18_total"`
	TotalGST     decimal.Decimal `json:"total_gst"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	OrderTotal   decimal.Decimal `json:"order_total"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
}

type Order struct {
	ID            string        `json:"id"`
	UserID        uint          `json:"user_id"`
	Customer      CustomerInfo  `json:"customer"`
	Billing       Billing       `json:"billing"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod *string       `json:"payment_method,omitempty"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	UPIReference  *string       `json:"upi_reference,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []Item        `json:"items,omitempty"`
}

// Item is an immutable line snapshot taken at order time.
type Item struct {
	ID               int64           `json:"id"`
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	VariantID        string          `json:"variant_id"`
	ProductName      string          `json:"product_name"`
	VariantName      string          `json:"variant_name"`
	ImageURL         *string         `json:"image_url,omitempty"`
	SKU              *string         `json:"sku,omitempty"`
	GSTCategory      string          `json:"-"`
	BasePrice        decimal.Decimal `json:"base_price"`
	GSTRate          decimal.Decimal `json:"gst_rate"`
	GSTAmount        decimal.Decimal `json:"gst_amount"`
	UnitPriceWithGST decimal.Decimal `json:"unit_price_with_gst"`
	Quantity         int             `json:"quantity"`
	ItemSubtotal     decimal.Decimal `json:"item_subtotal"`
	ItemGSTTotal     decimal.Decimal `json:"item_gst_total"`
	ItemTotal        decimal.Decimal `json:"item_total"`
	Customization    json.RawMessage `json:"customization,omitempty"`
}

// Payable reports whether a gateway order may still be created for o.
func (o *Order) Payable() bool {
	return o.Status == StatusPending &&
		(o.PaymentStatus == PaymentPending || o.PaymentStatus == PaymentInitiated)
}

// Settled reports whether o already reached a terminal state.
func (o *Order) Settled() bool {
	return o.Status != StatusPending
}

// Outcome is the terminal transition settlement applies to an order.
type Outcome struct {
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	TransactionID string
	UPIReference  *string
}

// StatusView is what the payment status page shows.
type StatusView struct {
	OrderID       string        `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
