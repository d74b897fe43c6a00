package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ComplaintFilter captures listing parameters.
type ComplaintFilter struct {
	ReporterID *string
	RoutedTo   *domain.Category
	Statuses   []domain.ComplaintStatus
	Limit      int
	Offset     int
}

// MutateFunc applies a transition to a locked complaint. Returning an error aborts the write.
type MutateFunc func(c *domain.Complaint) error

// ComplaintRepository encapsulates complaint persistence.
type ComplaintRepository interface {
	Create(ctx context.Context, complaint *domain.Complaint) error
	GetByID(ctx context.Context, id string) (*domain.Complaint, error)
	List(ctx context.Context, filter ComplaintFilter) ([]domain.Complaint, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Complaint, error)
	CountByStatus(ctx context.Context) (map[domain.ComplaintStatus]int, error)
	CountByCategory(ctx context.Context) (map[domain.Category]int, error)
}

type complaintRepository struct {
	pool *pgxpool.Pool
}

// NewComplaintRepository instantiates repository.
func NewComplaintRepository(pool *pgxpool.Pool) ComplaintRepository {
	return &complaintRepository{pool: pool}
}

const complaintColumns = `id, reporter_id, title, description, category, image_url, voice_note_url,
               location_name, latitude, longitude, priority, department, status, is_final, created_at, updated_at`

func (r *complaintRepository) Create(ctx context.Context, complaint *domain.Complaint) error {
	const query = `
        INSERT INTO complaints (reporter_id, title, description, category, image_url, voice_note_url,
            location_name, latitude, longitude, priority, status, is_final)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		complaint.ReporterID,
		complaint.Title,
		complaint.Description,
		complaint.Category,
		complaint.ImageURL,
		complaint.VoiceNoteURL,
		complaint.LocationName,
		complaint.Location.Latitude,
		complaint.Location.Longitude,
		complaint.Priority,
		complaint.Status,
		complaint.IsFinal,
	).Scan(&complaint.ID, &complaint.CreatedAt, &complaint.UpdatedAt); err != nil {
		return err
	}
	if complaint.FeedbackHistory == nil {
		complaint.FeedbackHistory = []domain.FeedbackEntry{}
	}
	return nil
}

func (r *complaintRepository) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id=$1`
	complaint, err := scanComplaint(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	history, err := listFeedback(ctx, r.pool, []string{complaint.ID})
	if err != nil {
		return nil, err
	}
	complaint.FeedbackHistory = history[complaint.ID]
	return complaint, nil
}

func (r *complaintRepository) List(ctx context.Context, filter ComplaintFilter) ([]domain.Complaint, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ReporterID != nil {
		args = append(args, *filter.ReporterID)
		clauses = append(clauses, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if filter.RoutedTo != nil {
		args = append(args, *filter.RoutedTo)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(department=%s OR (department IS NULL AND category=%s))", placeholder, placeholder))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM complaints WHERE %s ORDER BY created_at DESC`,
		complaintColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	complaints, err := scanComplaints(rows)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(complaints))
	for i := range complaints {
		ids[i] = complaints[i].ID
	}
	history, err := listFeedback(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range complaints {
		complaints[i].FeedbackHistory = history[complaints[i].ID]
	}
	return complaints, nil
}

// Mutate locks the row for the duration of fn so concurrent transitions on one complaint serialize.
func (r *complaintRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Complaint, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id=$1 FOR UPDATE`
	complaint, err := scanComplaint(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	history, err := listFeedback(ctx, tx, []string{complaint.ID})
	if err != nil {
		return nil, err
	}
	complaint.FeedbackHistory = history[complaint.ID]

	before := len(complaint.FeedbackHistory)
	unrated := make(map[int]bool, before)
	for i := range complaint.FeedbackHistory {
		unrated[i] = !complaint.FeedbackHistory[i].Rated()
	}

	if err := fn(complaint); err != nil {
		return nil, err
	}
	if len(complaint.FeedbackHistory) < before {
		return nil, errors.New("feedback history is append-only")
	}

	const update = `
        UPDATE complaints SET priority=$1, department=$2, status=$3, is_final=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, update,
		complaint.Priority,
		complaint.Department,
		complaint.Status,
		complaint.IsFinal,
		complaint.ID,
	).Scan(&complaint.UpdatedAt); err != nil {
		return nil, err
	}

	for i := 0; i < before; i++ {
		entry := &complaint.FeedbackHistory[i]
		if !unrated[i] || !entry.Rated() {
			continue
		}
		const rate = `UPDATE feedback_entries SET rating=$1, comment=$2 WHERE id=$3 AND rating IS NULL`
		if _, err := tx.Exec(ctx, rate, *entry.Rating, entry.Comment, entry.ID); err != nil {
			return nil, err
		}
	}
	for i := before; i < len(complaint.FeedbackHistory); i++ {
		entry := &complaint.FeedbackHistory[i]
		entry.ComplaintID = complaint.ID
		const insert = `
            INSERT INTO feedback_entries (complaint_id, seq, rating, comment, proof_url)
            VALUES ($1,$2,$3,$4,$5)
            RETURNING id, created_at`
		if err := tx.QueryRow(ctx, insert,
			entry.ComplaintID,
			i,
			entry.Rating,
			entry.Comment,
			entry.ProofURL,
		).Scan(&entry.ID, &entry.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return complaint, nil
}

func (r *complaintRepository) CountByStatus(ctx context.Context) (map[domain.ComplaintStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM complaints GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ComplaintStatus]int, len(domain.AllStatuses))
	for rows.Next() {
		var status domain.ComplaintStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *complaintRepository) CountByCategory(ctx context.Context) (map[domain.Category]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, COUNT(*) FROM complaints GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Category]int, len(domain.Categories))
	for rows.Next() {
		var category domain.Category
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listFeedback(ctx context.Context, q querier, complaintIDs []string) (map[string][]domain.FeedbackEntry, error) {
	result := make(map[string][]domain.FeedbackEntry, len(complaintIDs))
	for _, id := range complaintIDs {
		result[id] = []domain.FeedbackEntry{}
	}
	if len(complaintIDs) == 0 {
		return result, nil
	}

	const query = `
        SELECT id, complaint_id, rating, comment, proof_url, created_at
        FROM feedback_entries WHERE complaint_id = ANY($1::uuid[]) ORDER BY complaint_id, seq ASC`
	rows, err := q.Query(ctx, query, complaintIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.FeedbackEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ComplaintID,
			&entry.Rating,
			&entry.Comment,
			&entry.ProofURL,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result[entry.ComplaintID] = append(result[entry.ComplaintID], entry)
	}
	return result, rows.Err()
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	var complaint domain.Complaint
	if err := row.Scan(
		&complaint.ID,
		&complaint.ReporterID,
		&complaint.Title,
		&complaint.Description,
		&complaint.Category,
		&complaint.ImageURL,
		&complaint.VoiceNoteURL,
		&complaint.LocationName,
		&complaint.Location.Latitude,
		&complaint.Location.Longitude,
		&complaint.Priority,
		&complaint.Department,
		&complaint.Status,
		&complaint.IsFinal,
		&complaint.CreatedAt,
		&complaint.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &complaint, nil
}

func scanComplaints(rows pgx.Rows) ([]domain.Complaint, error) {
	defer rows.Close()
	result := []domain.Complaint{}
	for rows.Next() {
		complaint, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *complaint)
	}
	return result, rows.Err()
}
