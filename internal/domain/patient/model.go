package patient

import (
	"time"

	"github.com/thmr/registry/internal/platform/entity"
)

// Patient maps to the patients table. The JSON API addresses phone1 as
// "phone" as well.
type Patient struct {
	ID        int64     `db:"id" entity:"pk"`
	Name      string    `db:"name" entity:"required"`
	Email     *string   `db:"email"`
	Gender    *string   `db:"gender"`
	Phone1    *string   `db:"phone1" entity:"alias=phone"`
	Phone2    *string   `db:"phone2"`
	Address   *string   `db:"address"`
	CreatedAt time.Time `db:"created_at" entity:"created"`
	UpdatedAt time.Time `db:"updated_at" entity:"updated"`
}

// Phones lists the numbers on file.
func (p *Patient) Phones() []string {
	var out []string
	for _, ph := range []*string{p.Phone1, p.Phone2} {
		if ph != nil && *ph != "" {
			out = append(out, *ph)
		}
	}
	return out
}

// Register binds the "patient" entity name to the patients table.
func Register(reg *entity.Registry) (*entity.Entity, error) {
	return reg.Register("patient", "patients", Patient{})
}
