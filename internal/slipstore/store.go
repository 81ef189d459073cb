// Package slipstore is the durable system of record for the assembled
// slip. The wizard writes it; the case-design side reads and edits the
// product snapshots inside it.
package slipstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Spok95/slip-bot/internal/slip"
)

// Backend keeps one JSON record per owner. Modify runs fn with the current
// record (nil when absent) under the backend's lock and stores what fn
// returns; a nil result deletes the record.
type Backend interface {
	Load(ctx context.Context, owner int64) ([]byte, error)
	Modify(ctx context.Context, owner int64, fn func(cur []byte) ([]byte, error)) error
}

// Store never fails on an empty record: every mutation starts from the
// default record when nothing is stored yet.
type Store struct {
	b   Backend
	log *slog.Logger
}

func New(b Backend, log *slog.Logger) *Store {
	return &Store{b: b, log: log.With("component", "slipstore")}
}

// Get returns nil, nil when nothing is stored.
func (s *Store) Get(ctx context.Context, owner int64) (*slip.Payload, error) {
	raw, err := s.b.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load slip: %w", err)
	}
	return decode(raw)
}

func (s *Store) Set(ctx context.Context, owner int64, p *slip.Payload) error {
	return s.modify(ctx, owner, func(*slip.Payload) (*slip.Payload, error) {
		if p == nil {
			return nil, nil
		}
		return p, nil
	})
}

// Update shallow-merges patch into the record.
func (s *Store) Update(ctx context.Context, owner int64, patch slip.Patch) (*slip.Payload, error) {
	var out *slip.Payload
	err := s.modify(ctx, owner, func(cur *slip.Payload) (*slip.Payload, error) {
		out = slip.Merge(cur, patch)
		return out, nil
	})
	return out, err
}

func (s *Store) AddProductSnapshot(ctx context.Context, owner int64, p slip.Product) error {
	return s.modify(ctx, owner, func(cur *slip.Payload) (*slip.Payload, error) {
		cur = orDefault(cur)
		cur.Products = append(cur.Products, p)
		return cur, nil
	})
}

// UpdateProductSnapshot patches the snapshot with the given id, creating it
// when it is not there yet.
func (s *Store) UpdateProductSnapshot(ctx context.Context, owner int64, id string, patch slip.ProductPatch) error {
	return s.modify(ctx, owner, func(cur *slip.Payload) (*slip.Payload, error) {
		cur = orDefault(cur)
		i := slices.IndexFunc(cur.Products, func(p slip.Product) bool { return p.ID == id })
		if i < 0 {
			cur.Products = append(cur.Products, slip.Product{ID: id})
			i = len(cur.Products) - 1
		}
		cur.Products[i] = cur.Products[i].With(patch)
		return cur, nil
	})
}

func (s *Store) RemoveProductSnapshot(ctx context.Context, owner int64, id string) error {
	return s.modify(ctx, owner, func(cur *slip.Payload) (*slip.Payload, error) {
		cur = orDefault(cur)
		cur.Products = slices.DeleteFunc(cur.Products, func(p slip.Product) bool { return p.ID == id })
		return cur, nil
	})
}

// SetSelectedTeeth writes the teeth list under "<arch>Teeth".
func (s *Store) SetSelectedTeeth(ctx context.Context, owner int64, arch slip.Arch, teeth []int) error {
	return s.modify(ctx, owner, func(cur *slip.Payload) (*slip.Payload, error) {
		cur = orDefault(cur)
		if cur.Teeth == nil {
			cur.Teeth = map[string][]int{}
		}
		cur.Teeth[slip.TeethField(arch)] = append([]int{}, teeth...)
		return cur, nil
	})
}

func (s *Store) Clear(ctx context.Context, owner int64) error {
	return s.modify(ctx, owner, func(*slip.Payload) (*slip.Payload, error) { return nil, nil })
}

func (s *Store) ResetToDefaults(ctx context.Context, owner int64) error {
	return s.modify(ctx, owner, func(*slip.Payload) (*slip.Payload, error) { return slip.Default(), nil })
}

/*** HELPERS ***/

func (s *Store) modify(ctx context.Context, owner int64, fn func(*slip.Payload) (*slip.Payload, error)) error {
	err := s.b.Modify(ctx, owner, func(raw []byte) ([]byte, error) {
		cur, err := decode(raw)
		if err != nil {
			// a corrupt record is replaced rather than blocking every write
			s.log.Warn("discarding undecodable slip", "owner", owner, "err", err)
			cur = nil
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return nil, err
		}
		return json.Marshal(next)
	})
	if err != nil {
		return fmt.Errorf("write slip: %w", err)
	}
	return nil
}

func decode(raw []byte) (*slip.Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p slip.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func orDefault(p *slip.Payload) *slip.Payload {
	if p == nil {
		return slip.Default()
	}
	if p.Products == nil {
		p.Products = []slip.Product{}
	}
	return p
}
