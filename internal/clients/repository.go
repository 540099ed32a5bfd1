package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/meetledger/meetledger/internal/shared"
)

// DB abstracts a pgx pool or transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for clients.
type Repository struct {
	db DB
}

// NewRepository constructs a repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const clientColumns = `id, name, parent_id, is_cohost, blocked,
	rate_domestic, rate_foreign, rate_reseller, resale_rate, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var parentID pgtype.Int8
	err := row.Scan(
		&c.ID, &c.Name, &parentID, &c.IsCoHost, &c.Blocked,
		&c.RateDomestic, &c.RateForeign, &c.RateReseller, &c.ResaleRate,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	return &c, nil
}

// CreateClient inserts a client.
func (r *Repository) CreateClient(ctx context.Context, input CreateClientInput) (*Client, error) {
	query := `
		INSERT INTO clients (
			name, parent_id, is_cohost, blocked,
			rate_domestic, rate_foreign, rate_reseller, resale_rate,
			created_at, updated_at
		) VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + clientColumns

	var parentID pgtype.Int8
	if input.ParentID != nil {
		parentID = pgtype.Int8{Int64: *input.ParentID, Valid: true}
	}
	row := r.db.QueryRow(ctx, query,
		input.Name, parentID, input.IsCoHost,
		input.RateDomestic, input.RateForeign, input.RateReseller, input.ResaleRate,
	)
	return scanClient(row)
}

// GetClient fetches one client by id.
func (r *Repository) GetClient(ctx context.Context, id int64) (*Client, error) {
	row := r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

// UpdateClient mutates name and rates.
func (r *Repository) UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error) {
	query := `
		UPDATE clients SET
			name = $2,
			rate_domestic = $3, rate_foreign = $4, rate_reseller = $5, resale_rate = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + clientColumns
	row := r.db.QueryRow(ctx, query, id,
		input.Name, input.RateDomestic, input.RateForeign, input.RateReseller, input.ResaleRate)
	return scanClient(row)
}

// SetBlocked toggles the blocked flag.
func (r *Repository) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET blocked = $2, updated_at = NOW() WHERE id = $1`, id, blocked)
	if err != nil {
		return fmt.Errorf("clients: set blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListClients returns clients matching the filter.
func (r *Repository) ListClients(ctx context.Context, req ListClientsRequest) ([]Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1=1`
	args := []any{}
	if req.ParentID != nil {
		args = append(args, *req.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if req.CoHosts {
		query += " AND is_cohost"
	}
	query += " ORDER BY id"
	if req.PerPage > 0 {
		args = append(args, req.PerPage)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		page := req.Page
		if page <= 0 {
			page = 1
		}
		args = append(args, (page-1)*req.PerPage)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SubClientIDs returns ids of clients reselling through the given co-host.
func (r *Repository) SubClientIDs(ctx context.Context, cohostID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM clients WHERE parent_id = $1 ORDER BY id`, cohostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
