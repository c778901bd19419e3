package stock

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

const (
	DefaultTTL       = 15 * time.Minute
	MaxExtendMinutes = 60
)

// Reservation is a time-bounded hold against a variant's stock.
type Reservation struct {
	ID        string
	VariantID string
	UserID    uint
	OrderID   *string
	Quantity  int
	Status    Status
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ReservationStatus is the store's view of one reservation. An active row past
// its expiry is reported as expired.
type ReservationStatus struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Quantity  int       `json:"quantity"`
	VariantID string    `json:"variant_id"`
}

type ReserveRequest struct {
	VariantID string
	Quantity  int
	UserID    uint
	OrderID   *string
}
