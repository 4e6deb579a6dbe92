package positions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists motor position snapshots.
type Repository interface {
	// Create inserts a snapshot.
	Create(ctx context.Context, position *MotorPosition) error

	// GetByUID retrieves one snapshot. Returns ErrNotFound if the UID
	// does not exist.
	GetByUID(ctx context.Context, uid string) (*MotorPosition, error)

	// List retrieves all snapshots, newest first.
	List(ctx context.Context) ([]MotorPosition, error)

	// Delete removes a snapshot. Returns ErrNotFound if the UID does not
	// exist.
	Delete(ctx context.Context, uid string) error
}

// SQLiteRepository implements Repository over SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a snapshot.
func (r *SQLiteRepository) Create(ctx context.Context, position *MotorPosition) error {
	axes, err := json.Marshal(position.Axes)
	if err != nil {
		return fmt.Errorf("marshalling axes: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO motor_positions (uid, name, axes, saved_at) VALUES (?, ?, ?, ?)`,
		position.UID, position.Name, string(axes), position.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// GetByUID retrieves one snapshot.
func (r *SQLiteRepository) GetByUID(ctx context.Context, uid string) (*MotorPosition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT uid, name, axes, saved_at FROM motor_positions WHERE uid = ?`, uid)
	position, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return position, nil
}

// List retrieves all snapshots, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]MotorPosition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uid, name, axes, saved_at FROM motor_positions ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var positions []MotorPosition
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		positions = append(positions, *position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return positions, nil
}

// Delete removes a snapshot.
func (r *SQLiteRepository) Delete(ctx context.Context, uid string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM motor_positions WHERE uid = ?`, uid)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (*MotorPosition, error) {
	var position MotorPosition
	var axes, savedAt string
	if err := row.Scan(&position.UID, &position.Name, &axes, &savedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(axes), &position.Axes); err != nil {
		return nil, fmt.Errorf("unmarshalling axes: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing saved_at: %w", err)
	}
	position.SavedAt = ts
	return &position, nil
}
