package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"shipzone-sync/internal/domain"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shippingStateSchema = `
CREATE TABLE IF NOT EXISTS shipping_states (
	site_id    TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type shippingStateRepository struct {
	db *pgxpool.Pool
}

// NewShippingStateRepository stores each site's state as one JSONB row.
func NewShippingStateRepository(db *pgxpool.Pool) domain.ShippingStateRepository {
	return &shippingStateRepository{db: db}
}

// EnsureShippingStateSchema creates the state table if it is missing.
func EnsureShippingStateSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, shippingStateSchema); err != nil {
		return fmt.Errorf("unable to create shipping_states table: %w", err)
	}
	return nil
}

func (r *shippingStateRepository) Get(ctx context.Context, siteID string) (*domain.ShippingState, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT state FROM shipping_states WHERE site_id = $1`, siteID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}

	var st domain.ShippingState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("corrupt shipping state for site %s: %w", siteID, err)
	}
	return &st, nil
}

func (r *shippingStateRepository) Save(ctx context.Context, state *domain.ShippingState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode shipping state: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO shipping_states (site_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (site_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		state.SiteID, raw,
	)
	return err
}
