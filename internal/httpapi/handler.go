// Package httpapi implements the JSON API surface: order extraction,
// listing and editing, invoice generation and download, async job status,
// and dead-letter queue administration. Every handler resolves its tenant
// from the request context rather than a path or query parameter, so a
// caller can never read or write another organization's data by supplying
// a different id.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kiranaflow/kiranaflow/internal/auth"
	"github.com/kiranaflow/kiranaflow/internal/extract"
	"github.com/kiranaflow/kiranaflow/internal/invoice"
	"github.com/kiranaflow/kiranaflow/internal/objectstore"
	"github.com/kiranaflow/kiranaflow/internal/pii"
	"github.com/kiranaflow/kiranaflow/internal/platform/httpx"
	"github.com/kiranaflow/kiranaflow/internal/queue"
	"github.com/kiranaflow/kiranaflow/internal/ratelimit"
	"github.com/kiranaflow/kiranaflow/internal/rbac"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
	"github.com/kiranaflow/kiranaflow/jobs"
)

// invoiceIdempotencyModule scopes idempotency keys for the
// generate-invoice endpoint within the shared idempotency_keys table.
const invoiceIdempotencyModule = "generate_invoice"

// OrderStore is the subset of storage.Repository the order endpoints need,
// declared on the consumer side so tests can substitute a mock.
type OrderStore interface {
	GetOrders(ctx context.Context, orgID string, limit, offset int) ([]storage.Order, error)
	GetOrder(ctx context.Context, orgID, id string) (*storage.Order, error)
	UpdateOrderStatus(ctx context.Context, orgID, id string, status storage.OrderStatus) (*storage.Order, error)
	UpdateChatOrderDetails(ctx context.Context, orgID, id string, patch storage.OrderPatch) (*storage.Order, error)
	DeleteOrder(ctx context.Context, orgID, id string) (bool, error)
	GetChatOrdersCount(ctx context.Context, orgID string, status *storage.OrderStatus) (int, error)
	Stats(ctx context.Context, orgID string) (storage.Stats, error)
	GenerateAndAttachInvoice(ctx context.Context, orgID, orderID string, generator storage.InvoiceGenerator) (*storage.Order, error)
	GetBusinessProfile(ctx context.Context, orgID string) (*storage.BusinessProfile, error)
}

// AdminStore is the subset of storage.Repository the account-administration
// endpoints need (API key issuance, org profile, user and role directory).
// Declared separately from OrderStore since these operations are gated by
// manage_api_keys/manage_users rather than the order permissions.
type AdminStore interface {
	CreateOrganizationProfile(ctx context.Context, orgID, legalName, gstNumber, currency string, defaultTaxRate float64) (*storage.BusinessProfile, error)
	UpsertApiKey(ctx context.Context, orgID, name, keyHash, keyMask string) (*storage.ApiKey, error)
	ListApiKeys(ctx context.Context, orgID string) ([]storage.ApiKey, error)
	RevokeAPIKey(ctx context.Context, orgID, id string) error
	ListUsers(ctx context.Context, orgID string) ([]storage.User, error)
	ListRoles(ctx context.Context, orgID string) ([]rbac.Role, error)
}

// Handler wires the collaborators behind every JSON endpoint.
type Handler struct {
	Orders        OrderStore
	Admin         AdminStore
	Extraction    *extract.Service
	Invoices      *invoice.Engine
	ObjectStore   *objectstore.Client
	JobClient     *jobs.Client
	JobProgress   *jobs.ProgressStore
	DLQ           *queue.DLQ
	Authenticator auth.Authenticator
	RBAC          rbac.Middleware
	PII           pii.Middleware
	RateLimit     *ratelimit.Limiter
	Idempotency   *shared.IdempotencyStore
	Logger        *slog.Logger

	validate *validator.Validate
}

// NewHandler constructs the httpapi Handler.
func NewHandler(
	orders OrderStore,
	admin AdminStore,
	extraction *extract.Service,
	invoices *invoice.Engine,
	objects *objectstore.Client,
	jobClient *jobs.Client,
	jobProgress *jobs.ProgressStore,
	dlq *queue.DLQ,
	authenticator auth.Authenticator,
	rbacMW rbac.Middleware,
	piiMW pii.Middleware,
	limiter *ratelimit.Limiter,
	idempotency *shared.IdempotencyStore,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Orders:        orders,
		Admin:         admin,
		Extraction:    extraction,
		Invoices:      invoices,
		ObjectStore:   objects,
		JobClient:     jobClient,
		JobProgress:   jobProgress,
		DLQ:           dlq,
		Authenticator: authenticator,
		RBAC:          rbacMW,
		PII:           piiMW,
		RateLimit:     limiter,
		Idempotency:   idempotency,
		Logger:        logger,
		validate:      validator.New(),
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// decodeAndValidate decodes the request body into target and runs struct
// validation, translating either failure into the uniform field-error
// shape rather than a bare 400.
func (h *Handler) decodeAndValidate(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return httpx.NewValidationError(httpx.FieldError{Field: "body", Message: "malformed or unexpected JSON: " + err.Error()})
	}
	if err := h.validate.Struct(target); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return httpx.NewValidationError(httpx.FieldError{Field: "body", Message: err.Error()})
		}
		fields := make([]httpx.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, httpx.FieldError{Field: fe.Field(), Message: fe.Tag()})
		}
		return httpx.NewValidationError(fields...)
	}
	return nil
}

const jobStatusPollTimeout = 5 * time.Second
