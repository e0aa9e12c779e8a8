package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranaflow/kiranaflow/internal/platform/db"
	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// Repository is the sole persistence gateway for orders, invoices, and the
// tenant entities around them. Order reads and writes carry
// "org_id = $1 AND deleted_at IS NULL" (or an equivalent predicate) so a
// forged id can never cross a tenant boundary; the identity lookups
// (GetUser, CreateUser, LookupAPIKey) are not org-scoped.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the read
// helpers below run unchanged inside or outside an explicit transaction.
type querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

// GetOrders returns org-scoped orders newest-first.
func (r *Repository) GetOrders(ctx context.Context, orgID string, limit, offset int) ([]Order, error) {
	return r.queryOrders(ctx, r.pool, `
		SELECT id, org_id, customer_id, extraction_type, delivery_address, total_amount_ps,
		       confidence, confidence_score, status, raw_ai_response, raw_messages,
		       invoice, invoice_sequence, idempotency_key, created_at, updated_at, deleted_at
		FROM orders
		WHERE org_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, orgID, limit, offset)
}

// GetOrder fails with shared.ErrNotFound if the row is absent, soft-deleted,
// or belongs to another org — these three cases are indistinguishable by
// design, so a cross-tenant probe learns nothing.
func (r *Repository) GetOrder(ctx context.Context, orgID, id string) (*Order, error) {
	orders, err := r.queryOrders(ctx, r.pool, `
		SELECT id, org_id, customer_id, extraction_type, delivery_address, total_amount_ps,
		       confidence, confidence_score, status, raw_ai_response, raw_messages,
		       invoice, invoice_sequence, idempotency_key, created_at, updated_at, deleted_at
		FROM orders
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL`, orgID, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	items, err := r.itemsForOrder(ctx, r.pool, orders[0].ID)
	if err != nil {
		return nil, err
	}
	orders[0].Items = items
	return &orders[0], nil
}

func (r *Repository) queryOrders(ctx context.Context, q querier, query string, args ...any) ([]Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var confidenceScore *float64
		var rawAI, rawMsgs, invoiceJSON []byte
		var invoiceSeq *int
		var deletedAt *time.Time
		if err := rows.Scan(
			&o.ID, &o.OrgID, &o.CustomerID, &o.ExtractionType, &o.DeliveryAddress, &o.TotalAmountPs,
			&o.Confidence, &confidenceScore, &o.Status, &rawAI, &rawMsgs,
			&invoiceJSON, &invoiceSeq, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt, &deletedAt,
		); err != nil {
			return nil, err
		}
		o.ConfidenceScore = confidenceScore
		o.RawAIResponse = rawAI
		o.RawMessages = rawMsgs
		o.InvoiceSequence = invoiceSeq
		o.DeletedAt = deletedAt
		if len(invoiceJSON) > 0 {
			var inv Invoice
			if err := json.Unmarshal(invoiceJSON, &inv); err != nil {
				return nil, fmt.Errorf("decode invoice snapshot: %w", err)
			}
			o.Invoice = &inv
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// itemsForOrder returns the normalized line items for an order. It reads
// only the order_items rows; when there are none, Items is empty, and no
// caller decodes items from the rawAiResponse audit JSON instead.
func (r *Repository) itemsForOrder(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_name, quantity, unit, price_per_unit_ps, total_price_ps
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductName, &it.Quantity, &it.Unit, &it.PricePerUnitPs, &it.TotalPricePs); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddOrder creates or reuses a customer, inserts the order, and bulk-inserts
// line items, all inside one transaction. For chat orders the customer is
// looked up by (orgId, name); for single-message orders a new customer row
// is always created, matching the source behavior where single-message
// senders are not deduplicated.
func (r *Repository) AddOrder(ctx context.Context, rec NewOrderRecord) (*Order, error) {
	var orderID string
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		customerID, err := r.resolveCustomer(ctx, tx, rec)
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}

		o := rec.Order
		rawAI := o.RawAIResponse
		if rawAI == nil {
			rawAI = []byte("{}")
		}
		rawMsgs := o.RawMessages
		if rawMsgs == nil {
			rawMsgs = []byte("[]")
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO orders (org_id, customer_id, extraction_type, delivery_address, total_amount_ps,
			                     confidence, confidence_score, status, raw_ai_response, raw_messages,
			                     idempotency_key, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now(), now())
			RETURNING id, created_at, updated_at`,
			o.OrgID, customerID, o.ExtractionType, o.DeliveryAddress, o.TotalAmountPs,
			o.Confidence, o.ConfidenceScore, OrderStatusPending, rawAI, rawMsgs, nullableString(o.IdempotencyKey),
		).Scan(&orderID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range o.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, product_name, quantity, unit, price_per_unit_ps, total_price_ps)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				orderID, item.ProductName, item.Quantity, item.Unit, item.PricePerUnitPs, item.TotalPricePs); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetOrder(ctx, rec.Order.OrgID, orderID)
}

func (r *Repository) resolveCustomer(ctx context.Context, tx pgx.Tx, rec NewOrderRecord) (string, error) {
	orgID := rec.Order.OrgID
	if rec.Order.ExtractionType == ExtractionChatLog {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM customers WHERE org_id = $1 AND name = $2`, orgID, rec.CustomerName).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO customers (org_id, name, phone, address, created_at)
		VALUES ($1,$2,$3,$4, now())
		RETURNING id`, orgID, rec.CustomerName, nullableString(rec.CustomerPhone), nullableString(rec.CustomerAddress)).Scan(&id)
	return id, err
}

// UpdateOrderStatus validates the target status before writing; anything
// outside the four enumerated states is rejected with shared.ErrValidation
// before ever reaching SQL.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orgID, id string, status OrderStatus) (*Order, error) {
	if !ValidOrderStatus(string(status)) {
		return nil, fmt.Errorf("status %q: %w", status, shared.ErrValidation)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE org_id = $2 AND id = $3 AND deleted_at IS NULL`, status, orgID, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	return r.GetOrder(ctx, orgID, id)
}

// UpdateChatOrderDetails applies the strict allow-list patch. An Items
// change is a delete-all-then-reinsert inside the same transaction — no
// per-row diff, matching the source's replacement semantics.
func (r *Repository) UpdateChatOrderDetails(ctx context.Context, orgID, id string, patch OrderPatch) (*Order, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if patch.DeliveryAddress != nil {
			tag, err := tx.Exec(ctx, `
				UPDATE orders SET delivery_address = $1, updated_at = now()
				WHERE org_id = $2 AND id = $3 AND deleted_at IS NULL`, *patch.DeliveryAddress, orgID, id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
			}
		}
		if patch.Items != nil {
			// Re-assert org scope before mutating items so a forged id under
			// another org cannot be edited via this path.
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE org_id=$1 AND id=$2 AND deleted_at IS NULL)`, orgID, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
				return err
			}
			var total int64
			for _, item := range *patch.Items {
				if _, err := tx.Exec(ctx, `
					INSERT INTO order_items (order_id, product_name, quantity, unit, price_per_unit_ps, total_price_ps)
					VALUES ($1,$2,$3,$4,$5,$6)`,
					id, item.ProductName, item.Quantity, item.Unit, item.PricePerUnitPs, item.TotalPricePs); err != nil {
					return err
				}
				total += item.TotalPricePs
			}
			if _, err := tx.Exec(ctx, `UPDATE orders SET total_amount_ps = $1, updated_at = now() WHERE id = $2`, total, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetOrder(ctx, orgID, id)
}

// DeleteOrder soft-deletes by setting deleted_at and reports whether a row
// was matched.
func (r *Repository) DeleteOrder(ctx context.Context, orgID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET deleted_at = now(), updated_at = now()
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL`, orgID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetChatOrdersCount returns the org-scoped, non-deleted order count,
// optionally filtered by status.
func (r *Repository) GetChatOrdersCount(ctx context.Context, orgID string, status *OrderStatus) (int, error) {
	var count int
	var err error
	if status != nil {
		err = r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE org_id=$1 AND status=$2 AND deleted_at IS NULL`, orgID, *status).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE org_id=$1 AND deleted_at IS NULL`, orgID).Scan(&count)
	}
	return count, err
}

// GetTotalRevenue sums total_amount_ps over non-deleted, confirmed-or-later
// orders for the org.
func (r *Repository) GetTotalRevenue(ctx context.Context, orgID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(total_amount_ps), 0) FROM orders
		WHERE org_id = $1 AND deleted_at IS NULL AND status IN ($2, $3)`,
		orgID, OrderStatusConfirmed, OrderStatusFulfilled).Scan(&total)
	return total, err
}

// Stats computes the aggregate counters for GET /api/stats.
func (r *Repository) Stats(ctx context.Context, orgID string) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE deleted_at IS NULL),
			count(*) FILTER (WHERE deleted_at IS NULL AND status = $2),
			count(*) FILTER (WHERE deleted_at IS NULL AND status = $3)
		FROM orders WHERE org_id = $1`,
		orgID, OrderStatusPending, OrderStatusConfirmed).Scan(&s.TotalOrders, &s.PendingOrders, &s.ConfirmedOrders)
	if err != nil {
		return Stats{}, err
	}
	s.TotalRevenuePs, err = r.GetTotalRevenue(ctx, orgID)
	return s, err
}

// InvoiceGenerator computes an invoice snapshot for the given order at the
// allocated sequence number. internal/invoice.Engine implements this.
type InvoiceGenerator func(order Order, sequence int) (Invoice, error)

// GenerateAndAttachInvoice is the critical transactional operation: it
// allocates the next per-org invoice sequence, invokes generator to compute
// the invoice, and attaches it to the order — all inside one transaction so
// the sequence, the invoice snapshot, and the status transition are
// atomic. A per-org FOR UPDATE lock on the organizations row serializes
// concurrent allocations within one org without blocking any other org.
func (r *Repository) GenerateAndAttachInvoice(ctx context.Context, orgID, orderID string, generator InvoiceGenerator) (*Order, error) {
	var result *Order
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		orders, err := r.queryOrders(ctx, tx, `
			SELECT id, org_id, customer_id, extraction_type, delivery_address, total_amount_ps,
			       confidence, confidence_score, status, raw_ai_response, raw_messages,
			       invoice, invoice_sequence, idempotency_key, created_at, updated_at, deleted_at
			FROM orders
			WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
			FOR UPDATE OF orders`, orgID, orderID)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return fmt.Errorf("order %s: %w", orderID, shared.ErrNotFound)
		}
		order := orders[0]
		order.Items, err = r.itemsForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		// Serialize sequence allocation for this org only; a row lock on the
		// organizations table never blocks a different org's transaction.
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, orgID).Scan(&locked); err != nil {
			return fmt.Errorf("lock organization: %w", err)
		}

		var maxSeq *int
		if err := tx.QueryRow(ctx, `SELECT max(invoice_sequence) FROM orders WHERE org_id = $1`, orgID).Scan(&maxSeq); err != nil {
			return fmt.Errorf("compute next sequence: %w", err)
		}
		nextSeq := nextSequence(maxSeq)

		invoice, err := generator(order, nextSeq)
		if err != nil {
			return fmt.Errorf("generate invoice: %w", err)
		}
		payload, err := json.Marshal(invoice)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orders SET invoice = $1, invoice_sequence = $2, status = $3, updated_at = now()
			WHERE org_id = $4 AND id = $5 AND deleted_at IS NULL`,
			payload, nextSeq, OrderStatusConfirmed, orgID, orderID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("order %s: %w", orderID, shared.ErrNotFound)
		}

		order.Invoice = &invoice
		order.InvoiceSequence = &nextSeq
		order.Status = OrderStatusConfirmed
		result = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// nextSequence computes the next per-org invoice sequence from the current
// max (nil when the org has never invoiced). Always called with the
// per-org row lock held, so the max it sees can never be stale relative to
// a concurrent allocation within the same org.
func nextSequence(maxSeq *int) int {
	if maxSeq == nil {
		return 1
	}
	return *maxSeq + 1
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
