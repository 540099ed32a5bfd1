package meetings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/shared"
)

// DB abstracts a pgx pool or transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for meetings.
type Repository struct {
	db DB
}

// NewRepository constructs a repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const meetingColumns = `id, owner_id, meeting_date, participant_count, category, attended, proof_ref, status, created_at, updated_at`

func scanMeeting(row pgx.Row) (*Meeting, error) {
	var m Meeting
	var date pgtype.Date
	err := row.Scan(&m.ID, &m.OwnerID, &date, &m.ParticipantCount, &m.Category,
		&m.Attended, &m.ProofRef, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if date.Valid {
		t := ledger.DateOf(date.Time)
		m.Date = &t
	}
	return &m, nil
}

// CreateMeeting inserts a meeting in ACTIVE status.
func (r *Repository) CreateMeeting(ctx context.Context, input CreateMeetingInput) (*Meeting, error) {
	query := `
		INSERT INTO meetings (owner_id, meeting_date, participant_count, category, attended, proof_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + meetingColumns
	var date pgtype.Date
	if input.Date != nil {
		date = pgtype.Date{Time: *input.Date, Valid: true}
	}
	row := r.db.QueryRow(ctx, query,
		input.OwnerID, date, input.ParticipantCount, input.Category,
		input.Attended, input.ProofRef, ledger.StatusActive)
	return scanMeeting(row)
}

// GetMeeting fetches one meeting.
func (r *Repository) GetMeeting(ctx context.Context, id int64) (*Meeting, error) {
	return scanMeeting(r.db.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
}

// GetMeetingForUpdate fetches one meeting with a row lock, for mutations.
func (r *Repository) GetMeetingForUpdate(ctx context.Context, id int64) (*Meeting, error) {
	return scanMeeting(r.db.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1 FOR UPDATE`, id))
}

// UpdateMeeting persists the mutable fields.
func (r *Repository) UpdateMeeting(ctx context.Context, id int64, input UpdateMeetingInput) (*Meeting, error) {
	query := `
		UPDATE meetings SET
			meeting_date = $2, participant_count = $3, category = $4,
			attended = $5, proof_ref = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + meetingColumns
	var date pgtype.Date
	if input.Date != nil {
		date = pgtype.Date{Time: *input.Date, Valid: true}
	}
	row := r.db.QueryRow(ctx, query, id, date, input.ParticipantCount, input.Category, input.Attended, input.ProofRef)
	return scanMeeting(row)
}

// SetStatus marks the lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status ledger.MeetingStatus) (*Meeting, error) {
	query := `UPDATE meetings SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + meetingColumns
	return scanMeeting(r.db.QueryRow(ctx, query, id, status))
}

// DeleteMeeting removes the row entirely. Most removal paths are soft status
// changes; this is the hard path used by cleanup tooling.
func (r *Repository) DeleteMeeting(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("meetings: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListMeetings returns meetings matching the filter, newest first.
func (r *Repository) ListMeetings(ctx context.Context, req ListMeetingsRequest) ([]Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE 1=1`
	args := []any{}
	if req.OwnerID > 0 {
		args = append(args, req.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if req.Date != nil {
		args = append(args, *req.Date)
		query += fmt.Sprintf(" AND COALESCE(meeting_date, created_at::date) = $%d", len(args))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY id DESC"
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
