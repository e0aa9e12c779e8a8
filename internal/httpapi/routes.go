package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranaflow/kiranaflow/internal/auth"
	"github.com/kiranaflow/kiranaflow/internal/invoice"
	"github.com/kiranaflow/kiranaflow/internal/platform/httpx"
	"github.com/kiranaflow/kiranaflow/internal/queue"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MountRoutes registers every endpoint under the /api prefix chi.Route
// mounts this at. Authentication runs first so every handler below it can
// assume a resolved org (and, for JWT callers, a user) on the context;
// RBAC and per-endpoint PII redaction are layered per route group, since
// different endpoints require different permissions.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}

	r.Get("/health", h.handleHealth)

	r.Group(func(gr chi.Router) {
		gr.Use(h.Authenticator.Authenticate)
		if h.RateLimit != nil {
			gr.Use(h.RateLimit.Middleware)
		}
		gr.Use(auth.RequireOrg)
		if h.PII.Redactor != nil {
			gr.Use(h.PII.Wrap)
		}

		gr.Group(func(gv chi.Router) {
			gv.Use(h.RBAC.RequireAny(shared.PermViewOrders))
			gv.Get("/stats", h.handleStats)
			gv.Get("/orders", h.handleListOrders)
			gv.Get("/orders/{id}", h.handleGetOrder)
			gv.Get("/orders/{id}/download", h.handleDownloadInvoice)
			gv.Get("/jobs/{id}", h.handleJobStatus)
			gv.Get("/queue/health", h.handleQueueHealth)
		})

		gr.Group(func(ge chi.Router) {
			ge.Use(h.RBAC.RequireAny(shared.PermEditOrders))
			ge.Post("/extract", h.handleExtractSingle)
			ge.Post("/extract-order", h.handleExtractChat)
			ge.Post("/generate-invoice", h.handleGenerateInvoice)
			ge.Post("/async/extract", h.handleAsyncExtractSingle)
			ge.Post("/async/extract-order", h.handleAsyncExtractChat)
			ge.Patch("/orders/{id}", h.handleUpdateStatus)
			ge.Patch("/orders/{id}/edit", h.handleEditOrder)
		})

		gr.Group(func(gd chi.Router) {
			gd.Use(h.RBAC.RequireAny(shared.PermDeleteOrders))
			gd.Delete("/orders/{id}", h.handleDeleteOrder)
		})

		gr.Group(func(ga chi.Router) {
			ga.Use(h.RBAC.RequireAny(shared.PermManageBilling))
			ga.Get("/admin/dlq", h.handleListDLQ)
			ga.Post("/admin/dlq/{jobId}/retry", h.handleRetryDLQJob)
			ga.Post("/admin/dlq/retry-all", h.handleRetryAllDLQ)
			ga.Put("/admin/profile", h.handleUpsertOrganizationProfile)
		})

		gr.Group(func(gk chi.Router) {
			gk.Use(h.RBAC.RequireAny(shared.PermManageAPIKeys))
			gk.Get("/admin/api-keys", h.handleListAPIKeys)
			gk.Post("/admin/api-keys", h.handleCreateAPIKey)
			gk.Delete("/admin/api-keys/{id}", h.handleRevokeAPIKey)
		})

		gr.Group(func(gu chi.Router) {
			gu.Use(h.RBAC.RequireAny(shared.PermManageUsers))
			gu.Get("/admin/users", h.handleListUsers)
			gu.Get("/admin/roles", h.handleListRoles)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	stats, err := h.Orders.Stats(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, newStatsResponse(stats))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	perPage := parsePositiveInt(r.URL.Query().Get("per_page"), defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	offset := (page - 1) * perPage

	orders, err := h.Orders.GetOrders(r.Context(), orgID, perPage, offset)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	total, err := h.Orders.GetChatOrdersCount(r.Context(), orgID, nil)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}

	items := make([]orderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, newOrderResponse(&orders[i]))
	}
	pagination := shared.NewPagination(page, perPage, total)
	httpx.JSON(w, r, http.StatusOK, map[string]any{
		"orders":     items,
		"pagination": pagination,
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	order, err := h.Orders.GetOrder(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) handleExtractSingle(w http.ResponseWriter, r *http.Request) {
	var req extractSingleRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	order, err := h.Extraction.SingleMessage(r.Context(), orgID, req.Message)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, newOrderResponse(order))
}

func (h *Handler) handleExtractChat(w http.ResponseWriter, r *http.Request) {
	var req extractChatRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	order, err := h.Extraction.ChatLog(r.Context(), orgID, req.Messages)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, newOrderResponse(order))
}

func (h *Handler) handleAsyncExtractSingle(w http.ResponseWriter, r *http.Request) {
	var req extractSingleRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	job := queue.ExtractionJob{
		Type:          storage.ExtractionSingleMessage,
		OrgID:         orgID,
		CorrelationID: shared.CorrelationIDFromContext(r.Context()),
		Message:       &req.Message,
		WebhookURL:    req.WebhookURL,
	}
	h.enqueueExtraction(w, r, job)
}

func (h *Handler) handleAsyncExtractChat(w http.ResponseWriter, r *http.Request) {
	var req extractChatRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	job := queue.ExtractionJob{
		Type:          storage.ExtractionChatLog,
		OrgID:         orgID,
		CorrelationID: shared.CorrelationIDFromContext(r.Context()),
		Messages:      req.Messages,
		WebhookURL:    req.WebhookURL,
	}
	h.enqueueExtraction(w, r, job)
}

func (h *Handler) enqueueExtraction(w http.ResponseWriter, r *http.Request, job queue.ExtractionJob) {
	if h.JobClient == nil {
		httpx.RespondError(w, r, errors.New("async extraction is not configured"))
		return
	}
	info, err := h.JobClient.EnqueueExtraction(r.Context(), job)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusAccepted, jobAcceptedResponse{JobID: info.ID})
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if h.JobProgress == nil {
		httpx.RespondError(w, r, shared.ErrNotFound)
		return
	}
	taskID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), jobStatusPollTimeout)
	defer cancel()

	result, found, err := h.JobProgress.GetResult(ctx, taskID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if found {
		httpx.JSON(w, r, http.StatusOK, jobStatusResponse{
			JobID:    taskID,
			Status:   result.Status,
			Progress: 100,
			OrderID:  result.OrderID,
			Error:    result.Error,
		})
		return
	}

	pct, found, err := h.JobProgress.Get(ctx, taskID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if !found {
		httpx.RespondError(w, r, shared.ErrNotFound)
		return
	}
	httpx.JSON(w, r, http.StatusOK, jobStatusResponse{
		JobID:    taskID,
		Status:   "processing",
		Progress: pct,
	})
}

func (h *Handler) handleQueueHealth(w http.ResponseWriter, r *http.Request) {
	if h.DLQ == nil {
		httpx.RespondError(w, r, errors.New("queue inspection is not configured"))
		return
	}
	failed, err := h.DLQ.ListFailed(1, 0)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"has_dead_letters": len(failed) > 0})
}

func (h *Handler) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req generateInvoiceRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.Idempotency != nil {
		if ref, ok, err := h.Idempotency.ResultRef(r.Context(), orgID, invoiceIdempotencyModule, idempotencyKey); err != nil {
			httpx.RespondError(w, r, err)
			return
		} else if ok {
			order, err := h.Orders.GetOrder(r.Context(), orgID, ref)
			if err != nil {
				httpx.RespondError(w, r, err)
				return
			}
			httpx.JSON(w, r, http.StatusOK, newOrderResponse(order))
			return
		}
	}

	profile, err := h.Orders.GetBusinessProfile(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	taxRate := req.TaxRatePct
	if taxRate == 0 {
		taxRate = profile.DefaultTaxRate
	}

	order, err := h.Orders.GenerateAndAttachInvoice(r.Context(), orgID, req.OrderID, func(order storage.Order, sequence int) (storage.Invoice, error) {
		return h.Invoices.Generate(order, invoice.Options{
			BusinessName:    profile.LegalName,
			GSTNumber:       profile.GSTNumber,
			InvoiceSequence: sequence,
			TaxRatePercent:  taxRate,
			IsInterstate:    req.IsInterstate,
		})
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}

	if idempotencyKey != "" && h.Idempotency != nil {
		if err := h.Idempotency.CheckAndInsert(r.Context(), orgID, invoiceIdempotencyModule, idempotencyKey, order.ID); err != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
			h.logger().Warn("record invoice idempotency key failed", slog.Any("error", err))
		}
	}

	httpx.JSON(w, r, http.StatusCreated, newOrderResponse(order))
}

func (h *Handler) handleDownloadInvoice(w http.ResponseWriter, r *http.Request) {
	if h.ObjectStore == nil {
		httpx.RespondError(w, r, errors.New("invoice storage is not configured"))
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	order, err := h.Orders.GetOrder(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if order.Invoice == nil {
		httpx.RespondError(w, r, shared.ErrNotFound)
		return
	}
	url := h.ObjectStore.SignedDownloadURL(order.Invoice.Number)
	httpx.JSON(w, r, http.StatusOK, map[string]string{"download_url": url})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if !storage.ValidOrderStatus(req.Status) {
		httpx.RespondError(w, r, httpx.NewValidationError(httpx.FieldError{Field: "status", Message: "must be one of pending, confirmed, fulfilled, cancelled"}))
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	order, err := h.Orders.UpdateOrderStatus(r.Context(), orgID, id, storage.OrderStatus(req.Status))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) handleEditOrder(w http.ResponseWriter, r *http.Request) {
	var req editOrderRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	patch := storage.OrderPatch{DeliveryAddress: req.DeliveryAddress}
	if req.Items != nil {
		items := make([]storage.OrderItem, 0, len(*req.Items))
		for _, in := range *req.Items {
			items = append(items, in.toStorage())
		}
		patch.Items = &items
	}

	order, err := h.Orders.UpdateChatOrderDetails(r.Context(), orgID, id, patch)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	deleted, err := h.Orders.DeleteOrder(r.Context(), orgID, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if !deleted {
		httpx.RespondError(w, r, shared.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	if h.DLQ == nil {
		httpx.RespondError(w, r, errors.New("dead-letter inspection is not configured"))
		return
	}
	pageSize := parsePositiveInt(r.URL.Query().Get("page_size"), defaultPageSize)
	pageNum := parsePositiveInt(r.URL.Query().Get("page"), 0)
	failedJobs, err := h.DLQ.ListFailed(pageSize, pageNum)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]failedJobResponse, 0, len(failedJobs))
	for _, j := range failedJobs {
		out = append(out, failedJobResponse{ID: j.ID, Queue: j.Queue, Type: j.Type, LastErr: j.LastErr})
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"jobs": out})
}

func (h *Handler) handleRetryDLQJob(w http.ResponseWriter, r *http.Request) {
	if h.DLQ == nil {
		httpx.RespondError(w, r, errors.New("dead-letter inspection is not configured"))
		return
	}
	jobID := chi.URLParam(r, "jobId")
	queueName := r.URL.Query().Get("queue")
	if queueName == "" {
		httpx.RespondError(w, r, httpx.NewValidationError(httpx.FieldError{Field: "queue", Message: "required"}))
		return
	}
	if err := h.DLQ.RetryOne(queueName, jobID); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleRetryAllDLQ(w http.ResponseWriter, r *http.Request) {
	if h.DLQ == nil {
		httpx.RespondError(w, r, errors.New("dead-letter inspection is not configured"))
		return
	}
	retried, err := h.DLQ.RetryAll(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, retryAllResponse{Retried: retried})
}

func (h *Handler) handleUpsertOrganizationProfile(w http.ResponseWriter, r *http.Request) {
	var req organizationProfileRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	profile, err := h.Admin.CreateOrganizationProfile(r.Context(), orgID, req.LegalName, req.GSTNumber, req.Currency, req.DefaultTaxRate)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, newBusinessProfileResponse(profile))
}

func (h *Handler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	keys, err := h.Admin.ListApiKeys(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]apiKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, newAPIKeyResponse(&keys[i]))
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"api_keys": out})
}

func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	orgID, _ := shared.OrgIDFromContext(r.Context())
	raw := "kf_live_" + uuid.NewString()
	key, err := h.Admin.UpsertApiKey(r.Context(), orgID, req.Name, auth.HashAPIKey(raw), auth.MaskAPIKey(raw))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	resp := newAPIKeyResponse(key)
	resp.RawKey = raw
	httpx.JSON(w, r, http.StatusCreated, resp)
}

func (h *Handler) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.Admin.RevokeAPIKey(r.Context(), orgID, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	users, err := h.Admin.ListUsers(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, newUserResponse(&users[i]))
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	orgID, _ := shared.OrgIDFromContext(r.Context())
	roles, err := h.Admin.ListRoles(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for i := range roles {
		out = append(out, newRoleResponse(&roles[i]))
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"roles": out})
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
