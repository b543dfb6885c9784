package patient

import (
	"context"
	"sort"
	"strings"

	"github.com/thmr/registry/internal/platform/entity"
)

type patientRepoStore struct {
	store  entity.Store
	entity *entity.Entity
}

// NewPatientRepoStore serves patients from a generic entity store, filtering
// searches in process.
func NewPatientRepoStore(store entity.Store, e *entity.Entity) PatientRepository {
	return &patientRepoStore{store: store, entity: e}
}

func (r *patientRepoStore) GetByID(ctx context.Context, id int64) (*Patient, error) {
	rec, err := r.store.SelectByID(ctx, r.entity, id)
	if err != nil {
		return nil, err
	}
	return rec.(*Patient), nil
}

func (r *patientRepoStore) Update(ctx context.Context, p *Patient) error {
	return r.store.Update(ctx, r.entity, p, editableColumns)
}

func (r *patientRepoStore) Search(ctx context.Context, params SearchParams) ([]*Patient, error) {
	recs, err := r.store.SelectAll(ctx, r.entity)
	if err != nil {
		return nil, err
	}
	var items []*Patient
	for _, rec := range recs {
		if p := rec.(*Patient); params.matches(p) {
			items = append(items, p)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (r *patientRepoStore) Commit(ctx context.Context) error {
	return r.store.Commit(ctx)
}

func (s SearchParams) matches(p *Patient) bool {
	return contains(&p.Name, s.Name) &&
		contains(p.Email, s.Email) &&
		contains(p.Gender, s.Gender) &&
		(s.Phone == "" || contains(p.Phone1, s.Phone) || contains(p.Phone2, s.Phone)) &&
		contains(p.Address, s.Address)
}

// contains mirrors ILIKE '%sub%': an empty pattern matches anything, while a
// NULL column matches nothing.
func contains(field *string, sub string) bool {
	if sub == "" {
		return true
	}
	if field == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*field), strings.ToLower(sub))
}
