// Package storage is the only channel through which order, invoice, and
// tenant data is read or written. Org-scoped methods take an organization
// id as their first parameter after ctx and filter on it; AddOrder reads it
// from rec.Order.OrgID, and the identity lookups GetUser, CreateUser and
// LookupAPIKey take no organization id.
package storage

import "time"

// Tier is an organization's billing tier, used to resolve rate limits.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Organization is the tenant root. Created externally; this package only
// reads and references it.
type Organization struct {
	ID          string
	DisplayName string
	GSTNumber   string
	Tier        Tier
	CreatedAt   time.Time
}

// BusinessProfile carries the identity and tax defaults the Invoice Engine
// needs, one-to-one with an Organization.
type BusinessProfile struct {
	OrgID          string
	LegalName      string
	GSTNumber      string
	Currency       string
	DefaultTaxRate float64
}

// User mirrors the external identity provider's subject id. OrgID is empty
// until the user joins an organization.
type User struct {
	ID        string
	OrgID     string
	Email     string
	Name      string
	RoleID    string
	CreatedAt time.Time
}

// ApiKey is stored only as a SHA-256 hash plus a display-safe mask; the raw
// value never appears at rest.
type ApiKey struct {
	ID         string
	OrgID      string
	Name       string
	KeyHash    string
	KeyMask    string
	IsActive   bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Customer is scoped per org; phone is unique only within an org.
type Customer struct {
	ID        string
	OrgID     string
	Name      string
	Phone     string
	Address   string
	CreatedAt time.Time
}

// Product is an optional per-org catalog entry.
type Product struct {
	ID    string
	OrgID string
	Name  string
	Unit  string
	Price *float64
}

// ExtractionType distinguishes how an order was produced.
type ExtractionType string

const (
	ExtractionSingleMessage ExtractionType = "single_message"
	ExtractionChatLog       ExtractionType = "chat_log"
)

// OrderStatus is one of the four enumerated states. UpdateOrderStatus
// rejects any other value with Validation.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether s is one of the four enumerated states.
func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusFulfilled, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Confidence is "high | medium | low" for chat orders; single-message
// orders instead populate ConfidenceScore with a 0..1 float.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// OrderItem is a normalized line: denormalized product name plus quantity
// and pricing as fixed-point paise.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductName    string
	Quantity       float64
	Unit           string
	PricePerUnitPs int64 // paise; null price upstream maps to 0
	TotalPricePs   int64
}

// InvoiceLine is one line of an attached invoice snapshot.
type InvoiceLine struct {
	ProductName string
	Quantity    float64
	Unit        string
	PricePs     int64
	AmountPs    int64
}

// Invoice is an embedded, immutable snapshot attached to an order exactly
// once, inside the transaction that allocates its sequence.
type Invoice struct {
	Number        string
	DateFormatted string
	CustomerName  string
	Lines         []InvoiceLine
	SubtotalPs    int64
	CGSTPs        int64
	SGSTPs        int64
	IGSTPs        *int64
	TotalPs       int64
	IssuerName    string
	IssuerGST     string
}

// Order carries every field in the §3 data model, including the audit
// columns that are retained even for failed downstream steps.
type Order struct {
	ID              string
	OrgID           string
	CustomerID      string
	ExtractionType  ExtractionType
	DeliveryAddress string
	TotalAmountPs   int64
	Confidence      Confidence
	ConfidenceScore *float64
	Status          OrderStatus
	RawAIResponse   []byte // audit copy of the LLM payload
	RawMessages     []byte // verbatim inputs
	Invoice         *Invoice
	InvoiceSequence *int
	IdempotencyKey  string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// NewOrderRecord is the input to AddOrder/AddChatOrder: an order plus the
// customer identity used to create-or-reuse a Customer row in the same
// transaction.
type NewOrderRecord struct {
	Order           Order
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
}

// OrderPatch is the strict allow-list for UpdateChatOrderDetails. Only
// populated fields (non-nil) are applied; Items, when non-nil, triggers a
// delete-all-then-reinsert replacement.
type OrderPatch struct {
	DeliveryAddress *string
	Items           *[]OrderItem
}

// Stats aggregates org-scoped totals for GET /api/stats.
type Stats struct {
	TotalOrders     int
	PendingOrders   int
	ConfirmedOrders int
	TotalRevenuePs  int64
}
