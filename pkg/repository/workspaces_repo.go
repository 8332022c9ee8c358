package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
)

const workspaceColumns = `id, name, description, owner_id, join_code, created_at, updated_at`

// WorkspacesRepository handles workspace ("groups" table) persistence.
type WorkspacesRepository struct {
	db *sql.DB
}

// NewWorkspacesRepository creates a new workspaces repository.
func NewWorkspacesRepository(db *sql.DB) *WorkspacesRepository {
	return &WorkspacesRepository{db: db}
}

// Create inserts a workspace. A join code collision surfaces as
// domain.ErrDuplicateKey.
func (r *WorkspacesRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	query := `
		INSERT INTO groups (id, name, description, owner_id, join_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		ws.ID, ws.Name, ws.Description, ws.OwnerID, ws.JoinCode, ws.CreatedAt,
	)
	return mapWriteError(err)
}

// Delete removes a workspace.
func (r *WorkspacesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrWorkspaceNotFound
	}
	return nil
}

// GetByID retrieves a workspace by ID.
func (r *WorkspacesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM groups WHERE id = $1`
	return scanWorkspace(r.db.QueryRowContext(ctx, query, id))
}

// GetByJoinCode retrieves a workspace by case-insensitive join code match.
func (r *WorkspacesRepository) GetByJoinCode(ctx context.Context, code string) (*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM groups WHERE upper(join_code) = upper($1)`
	return scanWorkspace(r.db.QueryRowContext(ctx, query, code))
}

func scanWorkspace(row *sql.Row) (*domain.Workspace, error) {
	ws := &domain.Workspace{}
	err := row.Scan(
		&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.JoinCode, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}
