// Package session holds the live state of one telemetry session: its on-disk
// store and the in-memory queue in front of it.
package session

import (
	"sync"

	"github.com/dreschagin/session-telemetry/internal/application/buffer"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/google/uuid"
)

// Session is owned by exactly one coordinator; its queue is never shared.
type Session struct {
	store repository.SessionStore
	queue *buffer.Queue[entity.Entry]

	flushMu sync.Mutex
}

func New(store repository.SessionStore) *Session {
	return &Session{
		store: store,
		queue: buffer.NewQueue[entity.Entry](),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.store.SessionID()
}

func (s *Session) Store() repository.SessionStore {
	return s.store
}

func (s *Session) Queue() *buffer.Queue[entity.Entry] {
	return s.queue
}

// LockFlush serializes writers of the live entries file for this session.
func (s *Session) LockFlush() func() {
	s.flushMu.Lock()
	return s.flushMu.Unlock
}
