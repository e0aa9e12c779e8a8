package storage

import (
	"context"
	"fmt"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// GetCustomer returns an org-scoped customer by id.
func (r *Repository) GetCustomer(ctx context.Context, orgID, id string) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, name, phone, address, created_at
		FROM customers WHERE org_id = $1 AND id = $2`, orgID, id).
		Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return &c, nil
}

// ListProducts returns the org's optional catalog.
func (r *Repository) ListProducts(ctx context.Context, orgID string) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, name, unit, price FROM products WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Unit, &p.Price); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
