package order

import "time"

const (
	// StatusPending marks an order awaiting payment or manual fulfillment.
	StatusPending = "Pending"
	// StatusCompleted marks a delivered order.
	StatusCompleted = "Completed"
)

// Order is a bundle purchase placed through the storefront or synced from a
// client-side transaction record. Admin status updates may set arbitrary
// terminal status strings.
type Order struct {
	ID           string
	UserEmail    string
	BundleID     string
	Network      string
	Title        string
	Beneficiary  string
	PricePesewas int64
	Status       string
	Paid         bool
	RemoteID     string
	CreatedAt    time.Time
}
