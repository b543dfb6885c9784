package entity

import (
	"context"
	"testing"
	"time"
)

type testPatient struct {
	ID        int64     `db:"id" entity:"pk"`
	Name      string    `db:"name" entity:"required"`
	Email     *string   `db:"email"`
	Gender    *string   `db:"gender"`
	Phone1    *string   `db:"phone1" entity:"alias=phone"`
	Address   *string   `db:"address"`
	Visits    *int      `db:"visits"`
	CreatedAt time.Time `db:"created_at" entity:"created"`
	UpdatedAt time.Time `db:"updated_at" entity:"updated"`

	note string `db:"note"`
}

type testDevice struct {
	ID     int32  `db:"id" entity:"pk"`
	Serial string `db:"serial" entity:"required"`
	Active bool   `db:"active"`
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if _, err := reg.Register("Patient", "patients", testPatient{}); err != nil {
		t.Fatalf("register patient: %v", err)
	}
	if _, err := reg.Register("device", "devices", &testDevice{}); err != nil {
		t.Fatalf("register device: %v", err)
	}
	return reg
}

func newTestStore(t *testing.T) (*Registry, *MemStore) {
	t.Helper()
	reg := newTestRegistry(t)
	store, err := NewMemStore(reg.Entities()...)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	return reg, store
}

func newTestDao(t *testing.T, name string) *Dao {
	t.Helper()
	reg, store := newTestStore(t)
	dao, err := NewDao(store, reg, name, nil)
	if err != nil {
		t.Fatalf("NewDao(%s): %v", name, err)
	}
	return dao
}

func strPtr(s string) *string { return &s }

func createJane(t *testing.T, dao *Dao) *testPatient {
	t.Helper()
	rec, err := dao.Create(context.Background(), map[string]interface{}{
		"name":    "Jane Doe",
		"email":   "jane@x.com",
		"gender":  "F",
		"phone":   "555-1000",
		"address": "1 Main St",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec.(*testPatient)
}
