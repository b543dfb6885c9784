package entity

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Column describes one mapped struct field.
type Column struct {
	Name      string
	FieldName string
	Type      reflect.Type
	PK        bool
	Required  bool
	Created   bool
	Updated   bool
	// Aliases are extra names accepted for the column on writes.
	Aliases []string

	index int
}

// Generated reports whether the store, not the client, sets the column.
func (c *Column) Generated() bool {
	return c.PK || c.Created || c.Updated
}

// Entity is the descriptor of a registered record type. Records of an entity
// are pointers to its struct type.
type Entity struct {
	Name    string
	Table   string
	Type    reflect.Type
	Columns []*Column

	pk     *Column
	byName map[string]*Column
}

// PK returns the primary-key column.
func (e *Entity) PK() *Column { return e.pk }

// Column looks up a column by name or alias.
func (e *Entity) Column(name string) (*Column, bool) {
	c, ok := e.byName[name]
	return c, ok
}

// ColumnNames returns the column names in declaration order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// New allocates an empty record.
func (e *Entity) New() interface{} {
	return reflect.New(e.Type).Interface()
}

// ID returns the primary key of rec.
func (e *Entity) ID(rec interface{}) int64 {
	return e.field(rec, e.pk).Int()
}

func (e *Entity) field(rec interface{}, c *Column) reflect.Value {
	return e.value(rec).Field(c.index)
}

func (e *Entity) value(rec interface{}) reflect.Value {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Ptr || v.Elem().Type() != e.Type {
		panic(fmt.Sprintf("entity %s: record of type %T, want *%s", e.Name, rec, e.Type))
	}
	return v.Elem()
}

// Describe builds the descriptor of prototype, a struct or pointer to struct.
// Fields are mapped through their `db` tag; an `entity` tag adds the
// comma-separated flags pk, required, created, updated and alias=<name>.
// Exactly one integer pk column is required.
func Describe(name, table string, prototype interface{}) (*Entity, error) {
	t := reflect.TypeOf(prototype)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity %s: prototype must be a struct, got %T", name, prototype)
	}

	e := &Entity{
		Name:   strings.ToLower(name),
		Table:  table,
		Type:   t,
		byName: make(map[string]*Column),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		col := f.Tag.Get("db")
		if col == "" || col == "-" || !f.IsExported() {
			continue
		}
		c := &Column{Name: col, FieldName: f.Name, Type: f.Type, index: i}
		for _, flag := range strings.Split(f.Tag.Get("entity"), ",") {
			switch strings.TrimSpace(flag) {
			case "pk":
				c.PK = true
			case "required":
				c.Required = true
			case "created":
				c.Created = true
			case "updated":
				c.Updated = true
			case "":
			default:
				if alias, ok := strings.CutPrefix(strings.TrimSpace(flag), "alias="); ok && alias != "" {
					c.Aliases = append(c.Aliases, alias)
					continue
				}
				return nil, fmt.Errorf("entity %s: field %s: unknown flag %q", name, f.Name, flag)
			}
		}
		if c.PK {
			if e.pk != nil {
				return nil, fmt.Errorf("entity %s: more than one pk column", name)
			}
			switch f.Type.Kind() {
			case reflect.Int, reflect.Int32, reflect.Int64:
			default:
				return nil, fmt.Errorf("entity %s: pk %s must be an integer", name, f.Name)
			}
			e.pk = c
		}
		if (c.Created || c.Updated) && indirect(f.Type) != timeType {
			return nil, fmt.Errorf("entity %s: timestamp %s must be a time.Time", name, f.Name)
		}
		if _, dup := e.byName[col]; dup {
			return nil, fmt.Errorf("entity %s: duplicate column %s", name, col)
		}
		e.byName[col] = c
		e.Columns = append(e.Columns, c)
	}
	for _, c := range e.Columns {
		for _, alias := range c.Aliases {
			if _, dup := e.byName[alias]; dup {
				return nil, fmt.Errorf("entity %s: alias %s shadows a column", name, alias)
			}
			e.byName[alias] = c
		}
	}
	if e.pk == nil {
		return nil, fmt.Errorf("entity %s: no pk column", name)
	}
	return e, nil
}

// Registry maps lowercase entity names to their descriptors. It is filled at
// start-up and read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register describes prototype and binds it to name.
func (r *Registry) Register(name, table string, prototype interface{}) (*Entity, error) {
	e, err := Describe(name, table, prototype)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[e.Name]; exists {
		return nil, fmt.Errorf("entity %s already registered", e.Name)
	}
	r.entities[e.Name] = e
	return e, nil
}

// Resolve returns the entity bound to name, ignoring case. The same
// descriptor is returned on every call.
func (r *Registry) Resolve(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return e, nil
}

// Entities returns every registered entity sorted by name.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func indirect(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}
