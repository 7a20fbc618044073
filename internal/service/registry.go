package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"kasabot/internal/model"
	"kasabot/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrKasaNotFound       = errors.New("kasa not found")
	ErrInvalidCredentials = errors.New("invalid license key or pin code")
)

// Registry is the process-wide device collection, keyed by user. It is the
// single source of truth while the process runs: every mutation is applied in
// memory and then flushed to the store as a full snapshot. Callers only ever
// see copies.
type Registry struct {
	mu    sync.RWMutex
	store repository.KasaStore
	users map[string][]*model.Kasa
}

// LoadRegistry reads the stored snapshot. A load failure is fatal to the
// caller: devices cannot be polled without their baseline.
func LoadRegistry(ctx context.Context, store repository.KasaStore) (*Registry, error) {
	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load kasas: %w", err)
	}
	r := &Registry{store: store, users: make(map[string][]*model.Kasa, len(loaded))}
	for userID, list := range loaded {
		for i := range list {
			k := list[i].Clone()
			k.UserID = userID
			r.users[userID] = append(r.users[userID], &k)
		}
	}
	return r, nil
}

// Snapshot returns a copy of one device.
func (r *Registry) Snapshot(id uuid.UUID) (model.Kasa, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k := r.findLocked(id); k != nil {
		return k.Clone(), true
	}
	return model.Kasa{}, false
}

// List returns copies of a user's devices in registration order.
func (r *Registry) List(userID string) []model.Kasa {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Kasa, 0, len(r.users[userID]))
	for _, k := range r.users[userID] {
		out = append(out, k.Clone())
	}
	return out
}

// Users returns every user id with at least one device, sorted.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.users))
	for u, list := range r.users {
		if len(list) > 0 {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// Add appends a device for userID with a fresh id and the next ordinal.
func (r *Registry) Add(ctx context.Context, userID string, k model.Kasa) (model.Kasa, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k = k.Clone()
	k.UserID = userID
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	next := 1
	for _, existing := range r.users[userID] {
		if existing.Index >= next {
			next = existing.Index + 1
		}
	}
	k.Index = next
	r.users[userID] = append(r.users[userID], &k)

	return k.Clone(), r.flushLocked(ctx)
}

// Commit replaces the stored device with k (matched by id) and flushes.
// The in-memory state is updated even when the flush fails; the next
// mutation retries the write.
func (r *Registry) Commit(ctx context.Context, k model.Kasa) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.findLocked(k.ID)
	if cur == nil {
		return ErrKasaNotFound
	}
	*cur = k.Clone()
	return r.flushLocked(ctx)
}

// Update applies fn to the stored device and flushes.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, fn func(k *model.Kasa)) (model.Kasa, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.findLocked(id)
	if cur == nil {
		return model.Kasa{}, ErrKasaNotFound
	}
	fn(cur)
	return cur.Clone(), r.flushLocked(ctx)
}

// Remove deletes one of a user's devices.
func (r *Registry) Remove(ctx context.Context, userID string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.users[userID]
	for i, k := range list {
		if k.ID != id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(r.users, userID)
		} else {
			r.users[userID] = list
		}
		return r.flushLocked(ctx)
	}
	return ErrKasaNotFound
}

func (r *Registry) findLocked(id uuid.UUID) *model.Kasa {
	for _, list := range r.users {
		for _, k := range list {
			if k.ID == id {
				return k
			}
		}
	}
	return nil
}

func (r *Registry) flushLocked(ctx context.Context) error {
	snapshot := make(map[string][]model.Kasa, len(r.users))
	for userID, list := range r.users {
		copies := make([]model.Kasa, 0, len(list))
		for _, k := range list {
			copies = append(copies, k.Clone())
		}
		snapshot[userID] = copies
	}
	if err := r.store.SaveAll(ctx, snapshot); err != nil {
		return fmt.Errorf("persist kasas: %w", err)
	}
	return nil
}
