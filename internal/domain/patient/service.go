package patient

import (
	"context"
	"net/mail"
	"sort"
	"strings"

	"github.com/thmr/registry/internal/platform/web"
)

// Form is the search and edit form. Phone edits phone1.
type Form struct {
	Name    string
	Email   string
	Gender  string
	Phone   string
	Address string
}

// FormFromPatient pre-fills the edit form.
func FormFromPatient(p *Patient) Form {
	return Form{
		Name:    p.Name,
		Email:   deref(p.Email),
		Gender:  deref(p.Gender),
		Phone:   deref(p.Phone1),
		Address: deref(p.Address),
	}
}

// FormErrors maps form fields to messages.
type FormErrors map[string]string

func (e FormErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid patient form: " + strings.Join(fields, ", ")
}

type Service struct {
	repo  PatientRepository
	clean func(string) string
}

func NewService(repo PatientRepository) *Service {
	return &Service{repo: repo, clean: web.StripMarkup}
}

func (s *Service) Search(ctx context.Context, f Form) ([]*Patient, error) {
	return s.repo.Search(ctx, SearchParams{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Gender:  strings.TrimSpace(f.Gender),
		Phone:   strings.TrimSpace(f.Phone),
		Address: strings.TrimSpace(f.Address),
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies the edit form to patient id and commits. Invalid input
// yields FormErrors; an unknown id yields entity.ErrNotFound.
func (s *Service) Update(ctx context.Context, id int64, f Form) (*Patient, error) {
	f = s.cleanForm(f)
	if errs := validate(f); len(errs) > 0 {
		return nil, errs
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = f.Name
	p.Email = optional(f.Email)
	p.Gender = optional(f.Gender)
	p.Phone1 = optional(f.Phone)
	p.Address = optional(f.Address)

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) cleanForm(f Form) Form {
	return Form{
		Name:    s.clean(f.Name),
		Email:   s.clean(f.Email),
		Gender:  s.clean(f.Gender),
		Phone:   s.clean(f.Phone),
		Address: s.clean(f.Address),
	}
}

func validate(f Form) FormErrors {
	errs := FormErrors{}
	if f.Name == "" {
		errs["name"] = "This field is required."
	}
	if f.Email != "" {
		if addr, err := mail.ParseAddress(f.Email); err != nil || addr.Address != f.Email {
			errs["email"] = "Invalid email address."
		}
	}
	return errs
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
