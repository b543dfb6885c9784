package patient

import "context"

// SearchParams holds the search form. Every non-empty field must match as a
// case-insensitive substring; Phone matches either number.
type SearchParams struct {
	Name    string
	Email   string
	Gender  string
	Phone   string
	Address string
}

type PatientRepository interface {
	// GetByID returns entity.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// Search returns the matches ordered by name.
	Search(ctx context.Context, params SearchParams) ([]*Patient, error)
	// Commit makes the request's writes durable.
	Commit(ctx context.Context) error
}

// editableColumns are the columns the edit form writes.
var editableColumns = []string{"name", "email", "gender", "phone1", "address"}
