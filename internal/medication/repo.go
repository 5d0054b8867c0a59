package medication

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/avelar-dev/medikit/internal/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// blobKey is the single key-value slot holding the whole medication list.
const blobKey = "medications"

// BlobStore is the persistent key-value surface the repository writes
// through. *store.Store satisfies it.
type BlobStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Repository persists medications as one serialized list. Every mutation is
// read-entire-list, mutate, write-entire-list; blobMu serializes those
// sequences so interleaved mutations cannot drop each other's writes, and
// per-id locks let multi-step flows (the reconciler) hold one medication
// across several persists without blocking edits to others.
type Repository struct {
	kv     BlobStore
	logger *zap.Logger

	blobMu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRepository(kv BlobStore, logger *zap.Logger) *Repository {
	return &Repository{
		kv:     kv,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-medication mutex and returns its release func.
// Callers running a multi-step sequence (cancel, persist, schedule,
// persist) hold it for the whole sequence.
func (r *Repository) Lock(id string) func() {
	r.locksMu.Lock()
	mu, ok := r.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[id] = mu
	}
	r.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (r *Repository) load() ([]Medication, error) {
	raw, err := r.kv.Get(blobKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []Medication{}, nil
	}

	var list []Medication
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrap(err, errors.ErrStorage, "medication list is corrupt")
	}
	return list, nil
}

func (r *Repository) save(list []Medication) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, errors.ErrStorage, "failed to encode medication list")
	}
	return r.kv.Set(blobKey, raw)
}

// List returns all medications in insertion order.
func (r *Repository) List() ([]Medication, error) {
	r.blobMu.Lock()
	defer r.blobMu.Unlock()
	return r.load()
}

// Get returns one medication by id.
func (r *Repository) Get(id string) (*Medication, error) {
	r.blobMu.Lock()
	defer r.blobMu.Unlock()

	list, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			med := list[i]
			return &med, nil
		}
	}
	return nil, errors.ErrNotFound
}

// Add appends a new medication, assigning its id and timestamps.
func (r *Repository) Add(med *Medication) error {
	r.blobMu.Lock()
	defer r.blobMu.Unlock()

	if med.ID == "" {
		med.ID = uuid.NewString()
	}
	now := time.Now()
	med.CreatedAt = now
	med.UpdatedAt = now

	list, err := r.load()
	if err != nil {
		return err
	}
	list = append(list, *med)

	if err := r.save(list); err != nil {
		return err
	}

	r.logger.Info("Medication added",
		zap.String("medication_id", med.ID),
		zap.String("name", med.Name),
	)
	return nil
}

// Update applies mutate to the stored record and persists the whole list
// back. The mutation sees the committed record, never a caller-held copy.
func (r *Repository) Update(id string, mutate func(*Medication) error) (*Medication, error) {
	r.blobMu.Lock()
	defer r.blobMu.Unlock()

	list, err := r.load()
	if err != nil {
		return nil, err
	}

	for i := range list {
		if list[i].ID != id {
			continue
		}
		if err := mutate(&list[i]); err != nil {
			return nil, err
		}
		list[i].UpdatedAt = time.Now()

		if err := r.save(list); err != nil {
			return nil, err
		}
		med := list[i]
		return &med, nil
	}

	return nil, errors.ErrNotFound
}

// Delete removes the record. Alert cancellation is the caller's job and
// must happen before this.
func (r *Repository) Delete(id string) error {
	r.blobMu.Lock()
	defer r.blobMu.Unlock()

	list, err := r.load()
	if err != nil {
		return err
	}

	kept := list[:0]
	found := false
	for _, med := range list {
		if med.ID == id {
			found = true
			continue
		}
		kept = append(kept, med)
	}
	if !found {
		return errors.ErrNotFound
	}

	if err := r.save(kept); err != nil {
		return err
	}

	r.logger.Info("Medication deleted", zap.String("medication_id", id))
	return nil
}

// Replace overwrites the whole list, used by backup restore. Alert
// handles are cleared because platform alerts never survive into a
// restored process; records with occurrences show up as needing
// reschedule instead.
func (r *Repository) Replace(list []Medication) error {
	r.blobMu.Lock()
	defer r.blobMu.Unlock()

	for i := range list {
		list[i].AlertHandles = nil
	}
	if err := r.save(list); err != nil {
		return err
	}

	r.logger.Info("Medication list replaced", zap.Int("count", len(list)))
	return nil
}
