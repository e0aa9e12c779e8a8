package httpapi

import (
	"time"

	"github.com/kiranaflow/kiranaflow/internal/invoice"
	"github.com/kiranaflow/kiranaflow/internal/llm"
	"github.com/kiranaflow/kiranaflow/internal/rbac"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

// extractSingleRequest is the body for POST /api/extract and
// /api/async/extract.
type extractSingleRequest struct {
	Message    string  `json:"message" validate:"required"`
	WebhookURL *string `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

// extractChatRequest is the body for POST /api/extract-order and
// /api/async/extract-order.
type extractChatRequest struct {
	Messages   []llm.Message `json:"messages" validate:"required,min=1"`
	WebhookURL *string       `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

// generateInvoiceRequest is the body for POST /api/generate-invoice.
type generateInvoiceRequest struct {
	OrderID      string  `json:"order_id" validate:"required"`
	IsInterstate bool    `json:"is_interstate"`
	TaxRatePct   float64 `json:"tax_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// updateStatusRequest is the body for PATCH /api/orders/:id.
type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// orderItemInput is the allow-listed item shape accepted by the edit
// endpoint; prices arrive as decimal rupees and are converted to paise
// before they ever reach storage.
type orderItemInput struct {
	ProductName  string  `json:"product_name" validate:"required"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	Unit         string  `json:"unit"`
	PricePerUnit float64 `json:"price_per_unit" validate:"gte=0"`
}

// editOrderRequest is the strict allow-list body for PATCH
// /api/orders/:id/edit. Any field outside this shape is rejected by
// httpx.DecodeJSON's DisallowUnknownFields.
type editOrderRequest struct {
	DeliveryAddress *string           `json:"delivery_address,omitempty"`
	Items           *[]orderItemInput `json:"items,omitempty" validate:"omitempty,dive"`
}

func (in orderItemInput) toStorage() storage.OrderItem {
	pricePs := invoice.RupeesToPaise(in.PricePerUnit)
	return storage.OrderItem{
		ProductName:    in.ProductName,
		Quantity:       in.Quantity,
		Unit:           in.Unit,
		PricePerUnitPs: pricePs,
		TotalPricePs:   roundHalfUpPs(in.Quantity * float64(pricePs)),
	}
}

func roundHalfUpPs(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return -int64(-v + 0.5)
}

// orderItemResponse is the JSON-facing line item, with paise converted
// back to decimal rupees for display.
type orderItemResponse struct {
	ID           string  `json:"id"`
	ProductName  string  `json:"product_name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	PricePerUnit float64 `json:"price_per_unit"`
	Total        float64 `json:"total"`
}

type invoiceResponse struct {
	Number       string                `json:"number"`
	Date         string                `json:"date"`
	CustomerName string                `json:"customer_name"`
	Lines        []invoiceLineResponse `json:"lines"`
	Subtotal     float64               `json:"subtotal"`
	CGST         float64               `json:"cgst"`
	SGST         float64               `json:"sgst"`
	IGST         *float64              `json:"igst,omitempty"`
	Total        float64               `json:"total"`
	IssuerName   string                `json:"issuer_name"`
	IssuerGST    string                `json:"issuer_gst"`
}

type invoiceLineResponse struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	CustomerID      string              `json:"customer_id"`
	ExtractionType  string              `json:"extraction_type"`
	DeliveryAddress string              `json:"delivery_address"`
	Total           float64             `json:"total"`
	Confidence      string              `json:"confidence,omitempty"`
	ConfidenceScore *float64            `json:"confidence_score,omitempty"`
	Status          string              `json:"status"`
	Items           []orderItemResponse `json:"items"`
	Invoice         *invoiceResponse    `json:"invoice,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func newOrderResponse(o *storage.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:           it.ID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			Unit:         it.Unit,
			PricePerUnit: invoice.PaiseToRupees(it.PricePerUnitPs),
			Total:        invoice.PaiseToRupees(it.TotalPricePs),
		})
	}
	resp := orderResponse{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		ExtractionType:  string(o.ExtractionType),
		DeliveryAddress: o.DeliveryAddress,
		Total:           invoice.PaiseToRupees(o.TotalAmountPs),
		Confidence:      string(o.Confidence),
		ConfidenceScore: o.ConfidenceScore,
		Status:          string(o.Status),
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Invoice != nil {
		resp.Invoice = newInvoiceResponse(o.Invoice)
	}
	return resp
}

func newInvoiceResponse(inv *storage.Invoice) *invoiceResponse {
	lines := make([]invoiceLineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, invoiceLineResponse{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Unit:        l.Unit,
			Price:       invoice.PaiseToRupees(l.PricePs),
			Amount:      invoice.PaiseToRupees(l.AmountPs),
		})
	}
	var igst *float64
	if inv.IGSTPs != nil {
		v := invoice.PaiseToRupees(*inv.IGSTPs)
		igst = &v
	}
	return &invoiceResponse{
		Number:       inv.Number,
		Date:         inv.DateFormatted,
		CustomerName: inv.CustomerName,
		Lines:        lines,
		Subtotal:     invoice.PaiseToRupees(inv.SubtotalPs),
		CGST:         invoice.PaiseToRupees(inv.CGSTPs),
		SGST:         invoice.PaiseToRupees(inv.SGSTPs),
		IGST:         igst,
		Total:        invoice.PaiseToRupees(inv.TotalPs),
		IssuerName:   inv.IssuerName,
		IssuerGST:    inv.IssuerGST,
	}
}

type statsResponse struct {
	TotalOrders     int     `json:"total_orders"`
	PendingOrders   int     `json:"pending_orders"`
	ConfirmedOrders int     `json:"confirmed_orders"`
	TotalRevenue    float64 `json:"total_revenue"`
}

func newStatsResponse(s storage.Stats) statsResponse {
	return statsResponse{
		TotalOrders:     s.TotalOrders,
		PendingOrders:   s.PendingOrders,
		ConfirmedOrders: s.ConfirmedOrders,
		TotalRevenue:    invoice.PaiseToRupees(s.TotalRevenuePs),
	}
}

type jobAcceptedResponse struct {
	JobID string `json:"job_id"`
}

type jobStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	OrderID  string `json:"order_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type failedJobResponse struct {
	ID      string `json:"id"`
	Queue   string `json:"queue"`
	Type    string `json:"type"`
	LastErr string `json:"last_error"`
}

type retryAllResponse struct {
	Retried int `json:"retried"`
}

// createAPIKeyRequest is the body for POST /api/admin/api-keys.
type createAPIKeyRequest struct {
	Name string `json:"name" validate:"required"`
}

// apiKeyResponse never includes the key hash. RawKey is set only on the
// creating response, once, immediately after the key is minted — every
// other response (list) omits it and shows only Mask.
type apiKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Mask       string     `json:"mask"`
	RawKey     string     `json:"raw_key,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newAPIKeyResponse(k *storage.ApiKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Mask:       k.KeyMask,
		IsActive:   k.IsActive,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// organizationProfileRequest is the body for PUT /api/admin/profile.
type organizationProfileRequest struct {
	LegalName      string  `json:"legal_name" validate:"required"`
	GSTNumber      string  `json:"gst_number" validate:"required"`
	Currency       string  `json:"currency" validate:"required,len=3"`
	DefaultTaxRate float64 `json:"default_tax_rate" validate:"gte=0,lte=100"`
}

type businessProfileResponse struct {
	LegalName      string  `json:"legal_name"`
	GSTNumber      string  `json:"gst_number"`
	Currency       string  `json:"currency"`
	DefaultTaxRate float64 `json:"default_tax_rate"`
}

func newBusinessProfileResponse(p *storage.BusinessProfile) businessProfileResponse {
	return businessProfileResponse{
		LegalName:      p.LegalName,
		GSTNumber:      p.GSTNumber,
		Currency:       p.Currency,
		DefaultTaxRate: p.DefaultTaxRate,
	}
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *storage.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, RoleID: u.RoleID, CreatedAt: u.CreatedAt}
}

type roleResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newRoleResponse(r *rbac.Role) roleResponse {
	return roleResponse{ID: r.ID, Name: r.Name, Permissions: r.Permissions, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}
