package model

import "time"

// State is the lifecycle state of a checkout session.
type State string

const (
	StateActive          State = "ACTIVE"
	StatePendingCheckout State = "PENDING_CHECKOUT"
	StatePaid            State = "PAID"
	StateCancelled       State = "CANCELLED"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateActive, StatePendingCheckout, StatePaid, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StatePaid || s == StateCancelled
}

// Product is a catalog entry. Immutable once seeded.
type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Session is one checkout episode for one device.
//
// TotalAmount is a cache of the sum of the session's line amounts.
type Session struct {
	ID          string     `json:"session_id"`
	DeviceID    string     `json:"device_id"`
	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	TotalAmount int64      `json:"total_amount"`
}

// CartLine is the single ledger line for one product within a session.
type CartLine struct {
	ID        int64  `json:"item_id"`
	SessionID string `json:"-"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Amount    int64  `json:"amount"`
}

// Cart is a snapshot of a session's ledger.
type Cart struct {
	Items []CartLine `json:"items"`
	Total int64      `json:"total"`
}

// SumLines returns the sum of line amounts.
func SumLines(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}
	return total
}

// FrameRecord is the write-once provenance record of one ingested frame.
// Result holds the JSON-encoded FrameResult replayed on resubmission.
type FrameRecord struct {
	SessionID string    `json:"session_id"`
	FrameID   string    `json:"frame_id"`
	ImageRef  string    `json:"image_ref"`
	Result    []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Invoice is the immutable financial snapshot issued at confirmation.
type Invoice struct {
	ID          string    `json:"invoice_id"`
	SessionID   string    `json:"session_id"`
	IssuedAt    time.Time `json:"issued_at"`
	TotalAmount int64     `json:"total_amount"`
}

// FormatTime renders t the way the store and API expose timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
