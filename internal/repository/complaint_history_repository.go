package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// HistoryRepository stores complaint audit entries.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	ListByComplaint(ctx context.Context, complaintID string) ([]domain.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO complaint_history (complaint_id, actor_id, actor_role, change_type, old_value, new_value, reason, created_at)
        VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::user_role, $4, $5, $6, $7, COALESCE($8, NOW()))
        RETURNING id, created_at`
	var createdAt any
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	return r.pool.QueryRow(ctx, query,
		entry.ComplaintID,
		entry.ActorID,
		string(entry.ActorRole),
		string(entry.ChangeType),
		entry.OldValue,
		entry.NewValue,
		entry.Reason,
		createdAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *historyRepository) ListByComplaint(ctx context.Context, complaintID string) ([]domain.HistoryEntry, error) {
	const query = `
        SELECT id, complaint_id, COALESCE(actor_id::text, ''), COALESCE(actor_role::text, ''),
               change_type, old_value, new_value, reason, created_at
        FROM complaint_history WHERE complaint_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			entry      domain.HistoryEntry
			role       string
			changeType string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.ComplaintID,
			&entry.ActorID,
			&role,
			&changeType,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.ActorRole = domain.Role(role)
		entry.ChangeType = domain.ChangeType(changeType)
		result = append(result, entry)
	}
	return result, rows.Err()
}
