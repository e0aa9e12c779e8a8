package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// LookupAPIKey finds an active API key by its SHA-256 hash and bumps
// last_used_at. A miss (absent, inactive, or unknown hash) returns
// shared.ErrUnauthenticated.
func (r *Repository) LookupAPIKey(ctx context.Context, keyHash string) (*ApiKey, error) {
	var k ApiKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, name, key_hash, key_mask, is_active, last_used_at, created_at
		FROM api_keys WHERE key_hash = $1 AND is_active = true`, keyHash).
		Scan(&k.ID, &k.OrgID, &k.Name, &k.KeyHash, &k.KeyMask, &k.IsActive, &k.LastUsedAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if _, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, now, k.ID); err != nil {
		return nil, err
	}
	k.LastUsedAt = &now
	return &k, nil
}

// UpsertApiKey creates a key for an org, or reissues one under the same
// name: a second call with the same orgID/name rotates key_hash/key_mask
// and reactivates the row rather than erroring on a duplicate. Callers must
// have already hashed the raw key and computed its display-safe mask; the
// raw value is never persisted.
func (r *Repository) UpsertApiKey(ctx context.Context, orgID, name, keyHash, keyMask string) (*ApiKey, error) {
	var k ApiKey
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (org_id, name, key_hash, key_mask, is_active, created_at)
		VALUES ($1,$2,$3,$4,true, now())
		ON CONFLICT (org_id, name) DO UPDATE
			SET key_hash = EXCLUDED.key_hash, key_mask = EXCLUDED.key_mask, is_active = true
		RETURNING id, org_id, name, key_hash, key_mask, is_active, last_used_at, created_at`,
		orgID, name, keyHash, keyMask).
		Scan(&k.ID, &k.OrgID, &k.Name, &k.KeyHash, &k.KeyMask, &k.IsActive, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListApiKeys returns every key issued to an org, most recent first. Keys
// stay listed after revocation (IsActive=false) so an admin surface can show
// history, not just what is currently live.
func (r *Repository) ListApiKeys(ctx context.Context, orgID string) ([]ApiKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, name, key_hash, key_mask, is_active, last_used_at, created_at
		FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []ApiKey
	for rows.Next() {
		var k ApiKey
		if err := rows.Scan(&k.ID, &k.OrgID, &k.Name, &k.KeyHash, &k.KeyMask, &k.IsActive, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates a key scoped to its org.
func (r *Repository) RevokeAPIKey(ctx context.Context, orgID, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET is_active = false WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// CreateOrganizationProfile upserts the tax/identity profile an org's
// Invoice Engine calls default to. A second call for the same org replaces
// the prior profile rather than erroring, so onboarding can be re-run.
func (r *Repository) CreateOrganizationProfile(ctx context.Context, orgID, legalName, gstNumber, currency string, defaultTaxRate float64) (*BusinessProfile, error) {
	var p BusinessProfile
	err := r.pool.QueryRow(ctx, `
		INSERT INTO business_profiles (org_id, legal_name, gst_number, currency, default_tax_rate)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (org_id) DO UPDATE
			SET legal_name = EXCLUDED.legal_name, gst_number = EXCLUDED.gst_number,
				currency = EXCLUDED.currency, default_tax_rate = EXCLUDED.default_tax_rate
		RETURNING org_id, legal_name, gst_number, currency, default_tax_rate`,
		orgID, legalName, gstNumber, currency, defaultTaxRate).
		Scan(&p.OrgID, &p.LegalName, &p.GSTNumber, &p.Currency, &p.DefaultTaxRate)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrganization returns an organization by id, used to resolve tier for
// rate limiting and business identity for invoicing.
func (r *Repository) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	var o Organization
	err := r.pool.QueryRow(ctx, `SELECT id, display_name, gst_number, tier, created_at FROM organizations WHERE id = $1`, orgID).
		Scan(&o.ID, &o.DisplayName, &o.GSTNumber, &o.Tier, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", orgID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetBusinessProfile returns the 1:1 tax/identity profile for an org.
func (r *Repository) GetBusinessProfile(ctx context.Context, orgID string) (*BusinessProfile, error) {
	var p BusinessProfile
	err := r.pool.QueryRow(ctx, `SELECT org_id, legal_name, gst_number, currency, default_tax_rate FROM business_profiles WHERE org_id = $1`, orgID).
		Scan(&p.OrgID, &p.LegalName, &p.GSTNumber, &p.Currency, &p.DefaultTaxRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("business profile %s: %w", orgID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
