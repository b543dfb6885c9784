package user

import (
	"context"

	"github.com/thmr/registry/internal/platform/entity"
)

// userRepoStore keeps users in a generic entity store; the server uses it
// with the in-memory store.
type userRepoStore struct {
	store  entity.Store
	entity *entity.Entity
}

func NewUserRepoStore(store entity.Store, e *entity.Entity) UserRepository {
	return &userRepoStore{store: store, entity: e}
}

func (r *userRepoStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	recs, err := r.store.SelectAll(ctx, r.entity)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if u := rec.(*User); u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *userRepoStore) Create(ctx context.Context, u *User) error {
	if err := r.store.Insert(ctx, r.entity, u); err != nil {
		return err
	}
	return r.store.Commit(ctx)
}
