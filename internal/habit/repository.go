package habit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists habits and their tracking log. Every query is scoped
// to the owning username taken from the verified token, so a habit belonging
// to someone else is indistinguishable from one that does not exist.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListByOwner(ctx context.Context, owner string) ([]Habit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, frequency, owner_username, created_at, updated_at
		FROM habits
		WHERE owner_username = $1
		ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	defer rows.Close()

	habits := make([]Habit, 0)
	for rows.Next() {
		var h Habit
		if err := rows.Scan(&h.ID, &h.Name, &h.Description, &h.Frequency, &h.Owner, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}

	return habits, nil
}

func (r *Repository) Create(ctx context.Context, owner string, input HabitInput) (Habit, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Habit{}, fmt.Errorf("generate habit id: %w", err)
	}

	now := time.Now().UTC()
	h := Habit{
		ID:          id.String(),
		Name:        input.Name,
		Description: input.Description,
		Frequency:   input.Frequency,
		Owner:       owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO habits (id, name, description, frequency, owner_username, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, h.ID, h.Name, h.Description, h.Frequency, h.Owner, now)
	if err != nil {
		return Habit{}, fmt.Errorf("insert habit: %w", err)
	}

	return h, nil
}

func (r *Repository) Update(ctx context.Context, owner, id string, input HabitInput) (Habit, error) {
	var h Habit
	err := r.db.QueryRowContext(ctx, `
		UPDATE habits
		SET name = $3, description = $4, frequency = $5, updated_at = $6
		WHERE id = $1 AND owner_username = $2
		RETURNING id, name, description, frequency, owner_username, created_at, updated_at
	`, id, owner, input.Name, input.Description, input.Frequency, time.Now().UTC()).
		Scan(&h.ID, &h.Name, &h.Description, &h.Frequency, &h.Owner, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Habit{}, err
		}
		return Habit{}, fmt.Errorf("update habit: %w", err)
	}

	return h, nil
}

func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM habits
		WHERE id = $1 AND owner_username = $2
	`, id, owner)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete habit rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// CreateLog records one tracked day. The habit lookup and the insert share a
// statement so a foreign habit id fails the same way a missing one does.
func (r *Repository) CreateLog(ctx context.Context, owner, habitID string, input LogInput) (LogEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return LogEntry{}, fmt.Errorf("generate log id: %w", err)
	}

	now := time.Now().UTC()
	var entry LogEntry
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO habit_logs (id, habit_id, log_date, done, created_at)
		SELECT $1, h.id, $3::date, $4, $5
		FROM habits h
		WHERE h.id = $2 AND h.owner_username = $6
		RETURNING id, habit_id, log_date::text, done, created_at
	`, id.String(), habitID, input.Date, input.Done, now, owner).
		Scan(&entry.ID, &entry.HabitID, &entry.Date, &entry.Done, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LogEntry{}, err
		}
		return LogEntry{}, fmt.Errorf("insert habit log: %w", err)
	}

	return entry, nil
}

func (r *Repository) ListLogs(ctx context.Context, owner, habitID string) ([]LogEntry, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM habits WHERE id = $1 AND owner_username = $2)
	`, habitID, owner).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check habit owner: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, habit_id, log_date::text, done, created_at
		FROM habit_logs
		WHERE habit_id = $1
		ORDER BY log_date DESC
	`, habitID)
	if err != nil {
		return nil, fmt.Errorf("query habit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntry, 0)
	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(&entry.ID, &entry.HabitID, &entry.Date, &entry.Done, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan habit log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit logs: %w", err)
	}

	return entries, nil
}
