package user

import "errors"

const DefaultCredits = 10

var (
	ErrNotFound       = errors.New("user not found")
	ErrInvalidProfile = errors.New("invalid profile")
)

// dateLayout is the only accepted dateOfBirth form.
const dateLayout = "2006-01-02"

// User is the identity-linked profile row, keyed by email.
type User struct {
	ID                 int64   `json:"id" db:"id"`
	Name               string  `json:"name" db:"name"`
	Email              string  `json:"email" db:"email"`
	Credits            int     `json:"credits" db:"credits"`
	Phone              *string `json:"phone" db:"phone"`
	DateOfBirth        *string `json:"dateOfBirth" db:"date_of_birth"`
	Gender             *string `json:"gender" db:"gender"`
	Address            *string `json:"address" db:"address"`
	EmergencyContact   *string `json:"emergencyContact" db:"emergency_contact"`
	Allergies          *string `json:"allergies" db:"allergies"`
	CurrentMedications *string `json:"currentMedications" db:"current_medications"`
	MedicalConditions  *string `json:"medicalConditions" db:"medical_conditions"`
	HealthGoals        *string `json:"healthGoals" db:"health_goals"`
	ProfileComplete    bool    `json:"isProfileComplete" db:"profile_complete"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Phone              *string `json:"phone"`
	DateOfBirth        *string `json:"dateOfBirth"`
	Gender             *string `json:"gender"`
	Address            *string `json:"address"`
	EmergencyContact   *string `json:"emergencyContact"`
	Allergies          *string `json:"allergies"`
	CurrentMedications *string `json:"currentMedications"`
	MedicalConditions  *string `json:"medicalConditions"`
	HealthGoals        *string `json:"healthGoals"`
}
