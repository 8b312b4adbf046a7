package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/internal/domain/service"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

const sessionsDirName = "sessions"

// Options tune how session files are written.
type Options struct {
	Policy     service.RotationPolicy
	Weights    service.UrgencyWeights
	SyncWrites bool
}

// Repository implements repository.SessionRepository on a local directory.
// It hands out one SessionStore per session so every caller shares its lock.
type Repository struct {
	root   string
	opts   Options
	scorer *service.UrgencyScorer
	logger *logger.Logger

	mu     sync.Mutex
	stores map[uuid.UUID]*SessionStore
}

// NewRepository creates <dataDir>/sessions if needed.
func NewRepository(dataDir string, opts Options, log *logger.Logger) (*Repository, error) {
	root := filepath.Join(dataDir, sessionsDirName)
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	if opts.Policy.MaxFileSize <= 0 || opts.Policy.UrgencyThreshold <= 0 {
		opts.Policy = service.NewRotationPolicy(opts.Policy.MaxFileSize, opts.Policy.UrgencyThreshold)
	}

	return &Repository{
		root:   root,
		opts:   opts,
		scorer: service.NewUrgencyScorer(opts.Weights),
		logger: log,
		stores: make(map[uuid.UUID]*SessionStore),
	}, nil
}

// Root returns the sessions directory.
func (r *Repository) Root() string {
	return r.root
}

func (r *Repository) ListSessions(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		id, err := uuid.Parse(de.Name())
		if err != nil {
			r.logger.Warn("Skipping non-session directory", "name", de.Name())
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (r *Repository) Open(id uuid.UUID) repository.SessionStore {
	return r.Store(id)
}

// Store returns the concrete store for id.
func (r *Repository) Store(id uuid.UUID) *SessionStore {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.stores[id]; ok {
		return store
	}

	store := &SessionStore{
		id:       id,
		dir:      filepath.Join(r.root, id.String()),
		policy:   r.opts.Policy,
		scorer:   r.scorer,
		sync:     r.opts.SyncWrites,
		logger:   r.logger,
		onDelete: r.forget,
	}
	r.stores[id] = store
	return store
}

func (r *Repository) forget(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stores, id)
}
