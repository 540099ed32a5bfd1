package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/shared"
)

// DB abstracts a pgx pool or transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for the ledger. It is
// usually constructed over a transaction so a whole unit of work commits or
// rolls back atomically.
type Repository struct {
	db      DB
	clients *clients.Repository
}

// NewRepository constructs a repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db, clients: clients.NewRepository(db)}
}

// GetClient fetches a client record.
func (r *Repository) GetClient(ctx context.Context, id int64) (*clients.Client, error) {
	return r.clients.GetClient(ctx, id)
}

// SubClientIDs lists the sub-clients of a co-host.
func (r *Repository) SubClientIDs(ctx context.Context, cohostID int64) ([]int64, error) {
	return r.clients.SubClientIDs(ctx, cohostID)
}

// qualifyingFilter matches meetings that count toward dues. The exclusion
// set is injected as a parameter so the rule lives only in domain.go.
const qualifyingFilter = `
	attended
	AND proof_ref <> ''
	AND NOT (status = ANY($3))
	AND COALESCE(meeting_date, created_at::date) = $2`

// QualifyingMeetings lists one client's qualifying meetings for a date.
func (r *Repository) QualifyingMeetings(ctx context.Context, clientID int64, date time.Time) ([]MeetingCharge, error) {
	query := `
		SELECT id, participant_count, category
		FROM meetings
		WHERE owner_id = $1 AND` + qualifyingFilter + `
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, clientID, date, ExcludedStatusList())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeetingCharge
	for rows.Next() {
		var mc MeetingCharge
		if err := rows.Scan(&mc.MeetingID, &mc.Participants, &mc.Category); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// QualifyingSubTree totals qualifying participants and meetings across all
// sub-clients of a co-host for one date.
func (r *Repository) QualifyingSubTree(ctx context.Context, cohostID int64, date time.Time) (int, int, error) {
	query := `
		SELECT COALESCE(SUM(m.participant_count), 0), COUNT(*)
		FROM meetings m
		JOIN clients c ON c.id = m.owner_id
		WHERE c.parent_id = $1 AND m.attended
			AND m.proof_ref <> ''
			AND NOT (m.status = ANY($3))
			AND COALESCE(m.meeting_date, m.created_at::date) = $2`
	var participants, meetings int
	if err := r.db.QueryRow(ctx, query, cohostID, date, ExcludedStatusList()).Scan(&participants, &meetings); err != nil {
		return 0, 0, err
	}
	return participants, meetings, nil
}

// GetDailyBalance fetches one balance row.
func (r *Repository) GetDailyBalance(ctx context.Context, clientID int64, date time.Time) (*DailyBalance, error) {
	query := `
		SELECT client_id, balance_date, total_charge, advance_covered, owed, meeting_count, advance_id, updated_at
		FROM daily_balances
		WHERE client_id = $1 AND balance_date = $2`
	return scanBalance(r.db.QueryRow(ctx, query, clientID, date))
}

func scanBalance(row pgx.Row) (*DailyBalance, error) {
	var b DailyBalance
	var advanceID pgtype.Int8
	err := row.Scan(&b.ClientID, &b.Date, &b.TotalCharge, &b.AdvanceCovered, &b.Owed, &b.MeetingCount, &advanceID, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if advanceID.Valid {
		b.AdvanceID = &advanceID.Int64
	}
	b.Date = DateOf(b.Date)
	return &b, nil
}

// UpsertDailyBalance replaces the row for the balance's (client, date) key.
func (r *Repository) UpsertDailyBalance(ctx context.Context, balance *DailyBalance) error {
	query := `
		INSERT INTO daily_balances (client_id, balance_date, total_charge, advance_covered, owed, meeting_count, advance_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (client_id, balance_date) DO UPDATE SET
			total_charge = EXCLUDED.total_charge,
			advance_covered = EXCLUDED.advance_covered,
			owed = EXCLUDED.owed,
			meeting_count = EXCLUDED.meeting_count,
			advance_id = EXCLUDED.advance_id,
			updated_at = NOW()`
	var advanceID pgtype.Int8
	if balance.AdvanceID != nil {
		advanceID = pgtype.Int8{Int64: *balance.AdvanceID, Valid: true}
	}
	_, err := r.db.Exec(ctx, query,
		balance.ClientID, balance.Date, balance.TotalCharge, balance.AdvanceCovered,
		balance.Owed, balance.MeetingCount, advanceID)
	return err
}

// BalancesAfter lists balance rows dated strictly after the watermark, or
// all rows when the client has no watermark.
func (r *Repository) BalancesAfter(ctx context.Context, clientID int64, after *time.Time) ([]DailyBalance, error) {
	query := `
		SELECT client_id, balance_date, total_charge, advance_covered, owed, meeting_count, advance_id, updated_at
		FROM daily_balances
		WHERE client_id = $1 AND ($2::date IS NULL OR balance_date > $2)
		ORDER BY balance_date`
	var cutoff pgtype.Date
	if after != nil {
		cutoff = pgtype.Date{Time: *after, Valid: true}
	}
	rows, err := r.db.Query(ctx, query, clientID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

const advanceColumns = `id, client_id, original_amount, remaining, active, valid_from, valid_to, created_at`

func scanAdvance(row pgx.Row) (*Advance, error) {
	var a Advance
	var from, to pgtype.Date
	err := row.Scan(&a.ID, &a.ClientID, &a.OriginalAmount, &a.Remaining, &a.Active, &from, &to, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if from.Valid {
		t := DateOf(from.Time)
		a.ValidFrom = &t
	}
	if to.Valid {
		t := DateOf(to.Time)
		a.ValidTo = &t
	}
	return &a, nil
}

// GetAdvance fetches and row-locks one advance.
func (r *Repository) GetAdvance(ctx context.Context, id int64) (*Advance, error) {
	return scanAdvance(r.db.QueryRow(ctx, `SELECT `+advanceColumns+` FROM advances WHERE id = $1 FOR UPDATE`, id))
}

// OldestCoveringAdvance fetches and row-locks the client's oldest active
// advance whose validity window covers the given date; allocation is
// first-in-first-out among covering advances.
func (r *Repository) OldestCoveringAdvance(ctx context.Context, clientID int64, date time.Time) (*Advance, error) {
	query := `SELECT ` + advanceColumns + ` FROM advances
		WHERE client_id = $1 AND active
			AND (valid_from IS NULL OR valid_from <= $2)
			AND (valid_to IS NULL OR valid_to >= $2)
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE`
	return scanAdvance(r.db.QueryRow(ctx, query, clientID, date))
}

// UpdateAdvance persists remaining amount and active flag.
func (r *Repository) UpdateAdvance(ctx context.Context, advance *Advance) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE advances SET remaining = $2, active = $3 WHERE id = $1`,
		advance.ID, advance.Remaining, advance.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertAdvance records a new advance with full remaining credit.
func (r *Repository) InsertAdvance(ctx context.Context, input AdvanceInput) (*Advance, error) {
	query := `
		INSERT INTO advances (client_id, original_amount, remaining, active, valid_from, valid_to, created_at)
		VALUES ($1, $2, $2, TRUE, $3, $4, NOW())
		RETURNING ` + advanceColumns
	var from, to pgtype.Date
	if input.ValidFrom != nil {
		from = pgtype.Date{Time: *input.ValidFrom, Valid: true}
	}
	if input.ValidTo != nil {
		to = pgtype.Date{Time: *input.ValidTo, Valid: true}
	}
	return scanAdvance(r.db.QueryRow(ctx, query, input.ClientID, input.Amount, from, to))
}

// ListAdvances returns a client's advances, oldest first.
func (r *Repository) ListAdvances(ctx context.Context, clientID int64) ([]Advance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+advanceColumns+` FROM advances WHERE client_id = $1 ORDER BY created_at, id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Advance
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SumAdjustments totals the signed adjustments for a (client, date) key.
func (r *Repository) SumAdjustments(ctx context.Context, clientID int64, date time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM adjustments WHERE client_id = $1 AND adj_date = $2`,
		clientID, date).Scan(&sum)
	return sum, err
}

// InsertAdjustment appends a manual correction.
func (r *Repository) InsertAdjustment(ctx context.Context, input AdjustmentInput) (*Adjustment, error) {
	query := `
		INSERT INTO adjustments (client_id, adj_date, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, client_id, adj_date, amount, reason, created_at`
	var a Adjustment
	err := r.db.QueryRow(ctx, query, input.ClientID, DateOf(input.Date), input.Amount, input.Reason).
		Scan(&a.ID, &a.ClientID, &a.Date, &a.Amount, &a.Reason, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = DateOf(a.Date)
	return &a, nil
}

// ListAdjustments returns a client's adjustments, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, clientID int64) ([]Adjustment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, client_id, adj_date, amount, reason, created_at
		FROM adjustments WHERE client_id = $1 ORDER BY adj_date DESC, id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Date, &a.Amount, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Date = DateOf(a.Date)
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertPayment persists a reviewed payment. Approved payments are immutable
// afterwards.
func (r *Repository) InsertPayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	query := `
		INSERT INTO payments (client_id, amount, paid_through, status, rejected_amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, client_id, amount, paid_through, status, rejected_amount, reason, created_at`
	var p Payment
	err := r.db.QueryRow(ctx, query,
		input.ClientID, input.Amount, input.PaidThrough, input.Status, input.RejectedAmount, input.Reason).
		Scan(&p.ID, &p.ClientID, &p.Amount, &p.PaidThrough, &p.Status, &p.RejectedAmount, &p.Reason, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PaidThrough = DateOf(p.PaidThrough)
	return &p, nil
}

// ListPayments returns a client's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, clientID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, client_id, amount, paid_through, status, rejected_amount, reason, created_at
		FROM payments WHERE client_id = $1 ORDER BY created_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Amount, &p.PaidThrough, &p.Status, &p.RejectedAmount, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.PaidThrough = DateOf(p.PaidThrough)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Watermark returns the paid-through date, nil when nothing is settled yet.
func (r *Repository) Watermark(ctx context.Context, clientID int64) (*time.Time, error) {
	var through time.Time
	err := r.db.QueryRow(ctx,
		`SELECT paid_through FROM client_watermarks WHERE client_id = $1`, clientID).Scan(&through)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t := DateOf(through)
	return &t, nil
}

// AdvanceWatermark moves the paid-through date forward, never backward.
func (r *Repository) AdvanceWatermark(ctx context.Context, clientID int64, through time.Time) error {
	query := `
		INSERT INTO client_watermarks (client_id, paid_through, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (client_id) DO UPDATE SET
			paid_through = GREATEST(client_watermarks.paid_through, EXCLUDED.paid_through),
			updated_at = NOW()`
	_, err := r.db.Exec(ctx, query, clientID, through)
	return err
}

// UpsertLiability replaces the co-host's upstream liability for one date.
func (r *Repository) UpsertLiability(ctx context.Context, liability *CoHostLiability) error {
	query := `
		INSERT INTO cohost_liabilities (cohost_id, liability_date, participant_total, amount, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (cohost_id, liability_date) DO UPDATE SET
			participant_total = EXCLUDED.participant_total,
			amount = EXCLUDED.amount,
			updated_at = NOW()`
	_, err := r.db.Exec(ctx, query, liability.CoHostID, liability.Date, liability.ParticipantTotal, liability.Amount)
	return err
}

// ListLiabilities returns a co-host's upstream liabilities ordered by date.
func (r *Repository) ListLiabilities(ctx context.Context, cohostID int64) ([]CoHostLiability, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cohost_id, liability_date, participant_total, amount, updated_at
		FROM cohost_liabilities WHERE cohost_id = $1 ORDER BY liability_date`, cohostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CoHostLiability
	for rows.Next() {
		var l CoHostLiability
		if err := rows.Scan(&l.CoHostID, &l.Date, &l.ParticipantTotal, &l.Amount, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Date = DateOf(l.Date)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LockBalanceKey serialises writers of one (client, date) key for the
// duration of the transaction.
func (r *Repository) LockBalanceKey(ctx context.Context, clientID int64, date time.Time) error {
	key := fmt.Sprintf("%d:%s", clientID, date.Format(time.DateOnly))
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

// ActiveBalanceKeys lists every (client, date) key with a balance row, for
// the reconcile sweep. A zero since includes all dates.
func (r *Repository) ActiveBalanceKeys(ctx context.Context, since time.Time) ([]BalanceKeyRecord, error) {
	var sinceArg *time.Time
	if !since.IsZero() {
		day := DateOf(since)
		sinceArg = &day
	}
	rows, err := r.db.Query(ctx, `
		SELECT client_id, balance_date FROM daily_balances
		WHERE $1::date IS NULL OR balance_date >= $1
		ORDER BY client_id, balance_date`, sinceArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceKeyRecord
	for rows.Next() {
		var rec BalanceKeyRecord
		if err := rows.Scan(&rec.ClientID, &rec.Date); err != nil {
			return nil, err
		}
		rec.Date = DateOf(rec.Date)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DanglingMeetings lists meetings whose owner client no longer exists.
func (r *Repository) DanglingMeetings(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT m.id FROM meetings m
		LEFT JOIN clients c ON c.id = m.owner_id
		WHERE c.id IS NULL
		ORDER BY m.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BalanceKeyRecord identifies one (client, date) aggregate.
type BalanceKeyRecord struct {
	ClientID int64
	Date     time.Time
}
