package entity

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	memdb "github.com/hashicorp/go-memdb"
)

// MemStore keeps records in a go-memdb database, one table per entity, indexed
// by primary key. Every call is its own transaction, so Commit has nothing to
// do. Records are copied on the way in and out.
type MemStore struct {
	db    *memdb.MemDB
	now   func() time.Time
	mu    sync.Mutex
	seq   map[string]int64
	known map[string]*Entity
}

// NewMemStore builds the schema for entities.
func NewMemStore(entities ...*Entity) (*MemStore, error) {
	schema := &memdb.DBSchema{Tables: make(map[string]*memdb.TableSchema, len(entities))}
	known := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		schema.Tables[e.Name] = &memdb.TableSchema{
			Name: e.Name,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: e.PK().FieldName},
				},
			},
		}
		known[e.Name] = e
	}
	mdb, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("create memdb schema: %w", err)
	}
	return &MemStore{
		db:    mdb,
		now:   func() time.Time { return time.Now().UTC() },
		seq:   make(map[string]int64),
		known: known,
	}, nil
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Commit(ctx context.Context) error { return nil }

func (s *MemStore) check(e *Entity) error {
	if s.known[e.Name] != e {
		return fmt.Errorf("%w: %q has no memory table", ErrUnknownEntity, e.Name)
	}
	return nil
}

func (s *MemStore) SelectAll(ctx context.Context, e *Entity) ([]interface{}, error) {
	if err := s.check(e); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(e.Name, "id")
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", e.Name, err)
	}
	var recs []interface{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		recs = append(recs, clone(e, obj))
	}
	sort.Slice(recs, func(i, j int) bool { return e.ID(recs[i]) < e.ID(recs[j]) })
	return recs, nil
}

func (s *MemStore) SelectByID(ctx context.Context, e *Entity, id int64) (interface{}, error) {
	if err := s.check(e); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(e.Name, "id", pkArg(e, id))
	if err != nil {
		return nil, fmt.Errorf("select %s %d: %w", e.Name, id, err)
	}
	if obj == nil {
		return nil, ErrNotFound
	}
	return clone(e, obj), nil
}

func (s *MemStore) Insert(ctx context.Context, e *Entity, rec interface{}) error {
	if err := s.check(e); err != nil {
		return err
	}
	s.mu.Lock()
	s.seq[e.Name]++
	id := s.seq[e.Name]
	s.mu.Unlock()

	now := s.now()
	e.field(rec, e.PK()).SetInt(id)
	for _, c := range e.Columns {
		if c.Created || c.Updated {
			setTime(e.field(rec, c), now)
		}
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(e.Name, clone(e, rec)); err != nil {
		return fmt.Errorf("insert %s: %w", e.Name, err)
	}
	txn.Commit()
	return nil
}

func (s *MemStore) Update(ctx context.Context, e *Entity, rec interface{}, columns []string) error {
	if err := s.check(e); err != nil {
		return err
	}
	id := e.ID(rec)
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(e.Name, "id", pkArg(e, id))
	if err != nil {
		return fmt.Errorf("select %s %d: %w", e.Name, id, err)
	}
	if obj == nil {
		return ErrNotFound
	}

	stored := clone(e, obj)
	for _, name := range columns {
		c, ok := e.Column(name)
		if !ok || c.Generated() {
			continue
		}
		e.field(stored, c).Set(e.field(rec, c))
	}
	now := s.now()
	for _, c := range e.Columns {
		if c.Updated {
			setTime(e.field(stored, c), now)
		}
	}
	if err := txn.Insert(e.Name, clone(e, stored)); err != nil {
		return fmt.Errorf("update %s %d: %w", e.Name, id, err)
	}
	txn.Commit()

	e.value(rec).Set(e.value(clone(e, stored)))
	return nil
}

// pkArg converts id to the pk field's own kind; the memdb int indexer sizes
// its keys by kind.
func pkArg(e *Entity, id int64) interface{} {
	return reflect.ValueOf(id).Convert(e.PK().Type).Interface()
}

func clone(e *Entity, rec interface{}) interface{} {
	src := e.value(rec)
	dst := reflect.New(e.Type)
	dst.Elem().Set(src)
	for _, c := range e.Columns {
		f := dst.Elem().Field(c.index)
		if f.Kind() == reflect.Ptr && !f.IsNil() {
			p := reflect.New(f.Type().Elem())
			p.Elem().Set(f.Elem())
			f.Set(p)
		}
	}
	return dst.Interface()
}

func setTime(f reflect.Value, t time.Time) {
	if f.Kind() == reflect.Ptr {
		f.Set(reflect.ValueOf(&t))
		return
	}
	f.Set(reflect.ValueOf(t))
}
