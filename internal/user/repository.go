package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, email, name string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, email string, upd ProfileUpdate, markComplete bool) (*User, error)
}

type postgresRepo struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepo{db: db}
}

const userColumns = `id, name, email, credits, phone, date_of_birth::text AS date_of_birth, gender, address,
	emergency_contact, allergies, current_medications, medical_conditions, health_goals, profile_complete`

// Create inserts the user unless the email already exists; either way the stored row is returned.
func (r *postgresRepo) Create(ctx context.Context, email, name string) (*User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, credits) VALUES ($1, $2, $3) ON CONFLICT (email) DO NOTHING`,
		name, email, DefaultCredits)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.GetByEmail(ctx, email)
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

func (r *postgresRepo) UpdateProfile(ctx context.Context, email string, upd ProfileUpdate, markComplete bool) (*User, error) {
	query := `
		UPDATE users SET
			phone = COALESCE($2, phone),
			date_of_birth = COALESCE($3::date, date_of_birth),
			gender = COALESCE($4, gender),
			address = COALESCE($5, address),
			emergency_contact = COALESCE($6, emergency_contact),
			allergies = COALESCE($7, allergies),
			current_medications = COALESCE($8, current_medications),
			medical_conditions = COALESCE($9, medical_conditions),
			health_goals = COALESCE($10, health_goals),
			profile_complete = profile_complete OR $11
		WHERE email = $1
		RETURNING ` + userColumns

	var u User
	err := r.db.GetContext(ctx, &u, query,
		email, upd.Phone, upd.DateOfBirth, upd.Gender, upd.Address, upd.EmergencyContact,
		upd.Allergies, upd.CurrentMedications, upd.MedicalConditions, upd.HealthGoals, markComplete)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &u, nil
}
