package user

import (
	"time"

	"github.com/thmr/registry/internal/platform/entity"
)

// User maps to the users table. Users are provisioned from the command line
// and only read by the web surface.
type User struct {
	ID           int64     `db:"id" entity:"pk"`
	Email        string    `db:"email" entity:"required"`
	PasswordHash string    `db:"password_hash" entity:"required"`
	CreatedAt    time.Time `db:"created_at" entity:"created"`
}

// Describe returns the user entity for the generic stores. It is kept out of
// the public registry so the data API never serves password hashes.
func Describe() (*entity.Entity, error) {
	return entity.Describe("user", "users", User{})
}
