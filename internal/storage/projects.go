package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arisu-ai/arisu/internal/model"
)

// CreateProject inserts a project row.
func (db *DB) CreateProject(ctx context.Context, name string) (model.Project, error) {
	p := model.Project{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.CreatedAt,
	); err != nil {
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves one project by id.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// CreateAPIKey stores a hashed project credential.
func (db *DB) CreateAPIKey(ctx context.Context, key model.APIKey) error {
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO api_keys (id, project_id, name, key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		key.ID, key.ProjectID, key.Name, key.KeyHash, key.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage: create api key: %w", err)
	}
	return nil
}

// GetAPIKey retrieves one non-revoked API key by id.
func (db *DB) GetAPIKey(ctx context.Context, id uuid.UUID) (model.APIKey, error) {
	var k model.APIKey
	err := db.pool.QueryRow(ctx,
		`SELECT id, project_id, name, key_hash, created_at, revoked_at
		 FROM api_keys WHERE id = $1 AND revoked_at IS NULL`, id,
	).Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeyHash, &k.CreatedAt, &k.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.APIKey{}, ErrNotFound
	}
	if err != nil {
		return model.APIKey{}, fmt.Errorf("storage: get api key: %w", err)
	}
	return k, nil
}

// RevokeAPIKey marks a key revoked. Revocation is soft so issued JWTs can be
// traced back to their key.
func (db *DB) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
