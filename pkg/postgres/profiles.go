package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// GetProfile retrieves a profile by identity ID
func (d *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	var role string
	err := d.pool.QueryRow(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id).Scan(&p.ID, &p.Email, &p.Name, &role, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Role = model.ParseRole(role)
	return &p, nil
}

// InsertProfile inserts a new profile record
func (d *DB) InsertProfile(ctx context.Context, p *model.Profile) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO profiles (id, email, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Email, p.Name, string(p.Role), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return mapInsertError(err, "profile")
	}
	return nil
}

// UpdateProfileName sets a profile's display name
func (d *DB) UpdateProfileName(ctx context.Context, id, name string) error {
	return d.updateProfile(ctx, `UPDATE profiles SET name = $2, updated_at = $3 WHERE id = $1`, id, name)
}

// UpdateProfileRole sets a profile's role
func (d *DB) UpdateProfileRole(ctx context.Context, id string, role model.Role) error {
	return d.updateProfile(ctx, `UPDATE profiles SET role = $2, updated_at = $3 WHERE id = $1`, id, string(role))
}

func (d *DB) updateProfile(ctx context.Context, query, id, value string) error {
	tag, err := d.pool.Exec(ctx, query, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// ListProfilesByRole retrieves all profiles holding a role
func (d *DB) ListProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM profiles WHERE role = $1 ORDER BY created_at
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		var r string
		if err := rows.Scan(&p.ID, &p.Email, &p.Name, &r, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.Role = model.ParseRole(r)
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// InsertIdentity inserts sign-in credentials
func (d *DB) InsertIdentity(ctx context.Context, identity *db.Identity) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO identities (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, identity.ID, identity.Email, identity.PasswordHash, identity.CreatedAt.UTC())
	if err != nil {
		return mapInsertError(err, "identity")
	}
	return nil
}

// GetIdentityByEmail retrieves credentials by (lower-cased) email
func (d *DB) GetIdentityByEmail(ctx context.Context, email string) (*db.Identity, error) {
	var i db.Identity
	err := d.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at FROM identities WHERE email = $1
	`, email).Scan(&i.ID, &i.Email, &i.PasswordHash, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &i, nil
}
