package entity

import (
	"context"
	"sort"
)

// Dao runs CRUD for one entity against a Store.
type Dao struct {
	store  Store
	entity *Entity
	filter TextFilter
}

// NewDao resolves name in reg. filter, when non-nil, is applied to every
// string value written through Create or Update.
func NewDao(store Store, reg *Registry, name string, filter TextFilter) (*Dao, error) {
	e, err := reg.Resolve(name)
	if err != nil {
		return nil, err
	}
	return &Dao{store: store, entity: e, filter: filter}, nil
}

// Entity returns the descriptor the Dao was resolved to.
func (d *Dao) Entity() *Entity { return d.entity }

// FindAll returns every record ordered by primary key.
func (d *Dao) FindAll(ctx context.Context) ([]interface{}, error) {
	return d.store.SelectAll(ctx, d.entity)
}

// FindByID returns ErrNotFound when the record does not exist.
func (d *Dao) FindByID(ctx context.Context, id int64) (interface{}, error) {
	return d.store.SelectByID(ctx, d.entity, id)
}

// Create builds a record from fields and persists it. Generated columns in
// fields are ignored, so the dict of an existing record can be fed back.
func (d *Dao) Create(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	rec := d.entity.New()
	if _, err := d.assign(rec, fields); err != nil {
		return nil, err
	}
	for _, c := range d.entity.Columns {
		if c.Required && blank(d.entity.field(rec, c)) {
			return nil, invalid(c.Name, "is required")
		}
	}

	if err := d.store.Insert(ctx, d.entity, rec); err != nil {
		return nil, err
	}
	if err := d.store.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies fields to record id. Only the keys present are written. A
// body id must equal id, so a null id conflicts; when the body omits it, id
// is used.
func (d *Dao) Update(ctx context.Context, id int64, fields map[string]interface{}) (interface{}, error) {
	pk := d.entity.PK()
	if raw, ok := fields[pk.Name]; ok {
		if raw == nil {
			return nil, &ConflictError{PathID: id}
		}
		bodyID, ok := toInt64(raw)
		if !ok {
			return nil, invalid(pk.Name, "must be an integer")
		}
		if bodyID != id {
			return nil, &ConflictError{PathID: id, BodyID: &bodyID}
		}
	}

	rec, err := d.store.SelectByID(ctx, d.entity, id)
	if err != nil {
		return nil, err
	}
	columns, err := d.assign(rec, fields)
	if err != nil {
		return nil, err
	}
	for _, name := range columns {
		c, _ := d.entity.Column(name)
		if c.Required && blank(d.entity.field(rec, c)) {
			return nil, invalid(c.Name, "is required")
		}
	}
	if len(columns) == 0 {
		return rec, nil
	}

	if err := d.store.Update(ctx, d.entity, rec, columns); err != nil {
		return nil, err
	}
	if err := d.store.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// assign writes the writable keys of fields into rec and returns the columns
// it touched, in key order.
func (d *Dao) assign(rec interface{}, fields map[string]interface{}) ([]string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var columns []string
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		c, ok := d.entity.Column(k)
		if !ok {
			return nil, invalid(k, "unknown field for %s", d.entity.Name)
		}
		if c.Generated() {
			continue
		}
		v, err := convert(c, fields[k], d.filter)
		if err != nil {
			return nil, err
		}
		d.entity.field(rec, c).Set(v)
		if !seen[c.Name] {
			seen[c.Name] = true
			columns = append(columns, c.Name)
		}
	}
	return columns, nil
}
