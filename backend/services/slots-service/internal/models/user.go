package models

import "time"

// User roles.
const (
	RoleEnergyProvider = "EnergyProvider"
	RoleEVOwner        = "EVOwner"
)

// User represents a registered account.
type User struct {
	ID           string    `db:"user_id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
