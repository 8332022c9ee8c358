package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/teamspace/pkg/domain"
)

const profileColumns = `id, email, name, name_set, avatar_url, title, position, department, phone,
	bio, location, timezone, skills, role, created_at, updated_at`

// ProfilesRepository handles application profile persistence.
type ProfilesRepository struct {
	db *sql.DB
}

// NewProfilesRepository creates a new profiles repository.
func NewProfilesRepository(db *sql.DB) *ProfilesRepository {
	return &ProfilesRepository{db: db}
}

// Create inserts a profile row. A concurrent insert for the same id
// surfaces as domain.ErrDuplicateKey.
func (r *ProfilesRepository) Create(ctx context.Context, p *domain.Identity) error {
	query := `
		INSERT INTO profiles (id, email, name, name_set, avatar_url, title, position, department, phone,
			bio, location, timezone, skills, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.Name, p.NameSet, p.AvatarURL, p.Title, p.Position, p.Department, p.Phone,
		p.Bio, p.Location, p.Timezone, pq.Array(p.Skills), p.Role, p.CreatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a profile by identity ID.
func (r *ProfilesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	return p, err
}

// GetByIDs retrieves the profiles that exist among ids. Missing ids are
// simply absent from the result.
func (r *ProfilesRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1::uuid[])`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.Identity
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.Identity, error) {
	p := &domain.Identity{}
	var skills pq.StringArray
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.NameSet, &p.AvatarURL, &p.Title, &p.Position, &p.Department, &p.Phone,
		&p.Bio, &p.Location, &p.Timezone, &skills, &p.Role, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Skills = skills
	return p, nil
}
