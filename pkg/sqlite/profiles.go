package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

func scanProfile(row rowScanner) (*model.Profile, error) {
	var p model.Profile
	var role, createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Role = model.ParseRole(role)

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile retrieves a profile by identity ID
func (d *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, created_at, updated_at FROM profiles WHERE id = ?
	`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// InsertProfile inserts a new profile record
func (d *DB) InsertProfile(ctx context.Context, p *model.Profile) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Email, p.Name, string(p.Role), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return mapInsertError(err, "profile")
	}
	return nil
}

// UpdateProfileName sets a profile's display name
func (d *DB) UpdateProfileName(ctx context.Context, id, name string) error {
	return d.updateProfile(ctx, `UPDATE profiles SET name = ?, updated_at = ? WHERE id = ?`, name, id)
}

// UpdateProfileRole sets a profile's role
func (d *DB) UpdateProfileRole(ctx context.Context, id string, role model.Role) error {
	return d.updateProfile(ctx, `UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`, string(role), id)
}

func (d *DB) updateProfile(ctx context.Context, query, value, id string) error {
	updated, err := d.conditionalUpdate(ctx, "update profile", query, value, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if !updated {
		return db.ErrNotFound
	}
	return nil
}

// ListProfilesByRole retrieves all profiles holding a role
func (d *DB) ListProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM profiles WHERE role = ? ORDER BY created_at
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// InsertIdentity inserts sign-in credentials
func (d *DB) InsertIdentity(ctx context.Context, identity *db.Identity) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO identities (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)
	`, identity.ID, identity.Email, identity.PasswordHash, formatTime(identity.CreatedAt))
	if err != nil {
		return mapInsertError(err, "identity")
	}
	return nil
}

// GetIdentityByEmail retrieves credentials by (lower-cased) email
func (d *DB) GetIdentityByEmail(ctx context.Context, email string) (*db.Identity, error) {
	var i db.Identity
	var createdAt string
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM identities WHERE email = ?
	`, email).Scan(&i.ID, &i.Email, &i.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if i.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &i, nil
}
