package reloadify

import (
	"reflect"
	"time"

	"github.com/joshuarp/hotconfig/internal/shared/codec"
	"github.com/joshuarp/hotconfig/internal/shared/watch"
)

// Cloner lets a configuration type supply its own deep copy. Both value and
// pointer receivers are honored. Types that do not implement it are copied by
// decoding the retained raw content again.
type Cloner[T any] interface {
	Clone() T
}

// cell holds one decoded value behind a type tag that never changes after
// creation. Every field except desc, typ, decode, clone and watcher is
// guarded by Registry.mu.
type cell struct {
	desc Descriptor
	typ  reflect.Type

	value     any
	raw       []byte
	reloads   uint64
	updatedAt time.Time

	decode  func(raw []byte) (any, error)
	clone   func(value any, raw []byte) any
	watcher watch.Watcher
	subs    []subscriber
}

func (c *cell) snapshot() any {
	return c.clone(c.value, c.raw)
}

func (c *cell) info() Entry {
	return Entry{
		ID:        c.desc.ID,
		Path:      c.desc.Path,
		Format:    c.desc.Format,
		Backend:   c.desc.Backend,
		Type:      c.typ.String(),
		Reloads:   c.reloads,
		UpdatedAt: c.updatedAt,
		Listeners: len(c.subs),
	}
}

// newTypedCell builds the decode and clone closures for T.
func newTypedCell[T any](r *Registry, desc Descriptor) *cell {
	decode := func(raw []byte) (any, error) {
		var value T
		if err := r.decoder.Decode(raw, desc.Format, &value); err != nil {
			return nil, err
		}
		return value, nil
	}

	clone := func(value any, raw []byte) any {
		if c, ok := value.(Cloner[T]); ok {
			return c.Clone()
		}
		if v, ok := value.(T); ok {
			if c, ok := any(&v).(Cloner[T]); ok {
				return c.Clone()
			}
		}
		if copied, err := decode(raw); err == nil {
			return copied
		}
		return value
	}

	return &cell{
		desc:   desc,
		typ:    reflect.TypeFor[T](),
		decode: decode,
		clone:  clone,
	}
}

// Entry describes a registered configuration.
type Entry struct {
	ID        ConfigID       `json:"id"`
	Path      string         `json:"path"`
	Format    codec.Format   `json:"format"`
	Backend   watch.Strategy `json:"backend"`
	Type      string         `json:"type"`
	Reloads   uint64         `json:"reloads"`
	UpdatedAt time.Time      `json:"updated_at"`
	Listeners int            `json:"listeners"`
}
