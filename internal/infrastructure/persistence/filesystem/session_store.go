package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/internal/domain/service"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

const (
	metadataFileName = "metadata.json"
	entriesFileName  = "entries.json"
	outfileExt       = ".json"

	dirPerm  = 0o755
	filePerm = 0o644
)

// SessionStore keeps one session's files under <root>/sessions/<uuid>/.
// All file operations on the session go through mu.
type SessionStore struct {
	id     uuid.UUID
	dir    string
	policy service.RotationPolicy
	scorer *service.UrgencyScorer
	sync   bool
	logger *logger.Logger

	onDelete func(uuid.UUID)

	mu      sync.Mutex
	urgency float64
}

// Stats describes what a session currently holds on disk.
type Stats struct {
	HasMetadata bool    `json:"hasMetadata"`
	LiveBytes   int64   `json:"liveBytes"`
	Outfiles    int     `json:"outfiles"`
	OutBytes    int64   `json:"outBytes"`
	Urgency     float64 `json:"urgency"`
}

func (s *SessionStore) SessionID() uuid.UUID {
	return s.id
}

// Dir returns the session directory.
func (s *SessionStore) Dir() string {
	return s.dir
}

func (s *SessionStore) metadataPath() string {
	return filepath.Join(s.dir, metadataFileName)
}

func (s *SessionStore) entriesPath() string {
	return filepath.Join(s.dir, entriesFileName)
}

func (s *SessionStore) outDir() string {
	return filepath.Join(s.dir, "out", "entries")
}

func (s *SessionStore) SaveMetadata(ctx context.Context, metadata entity.SessionMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return writeFileAtomic(s.metadataPath(), data, s.sync)
}

func (s *SessionStore) LoadMetadata(ctx context.Context) (*entity.SessionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.metadataPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata entity.SessionMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &metadata, nil
}

func (s *SessionStore) AppendEntries(ctx context.Context, entries []entity.Entry) (repository.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.AppendResult{}, err
	}

	data, encoded := encodeLines(entries, func(entry entity.Entry, err error) {
		s.logger.Warn("Skipping entry that cannot be encoded",
			"session_id", s.id.String(),
			"error", err.Error(),
		)
	})

	result := repository.AppendResult{
		Written: len(encoded),
		Skipped: len(entries) - len(encoded),
	}
	if len(encoded) == 0 {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := s.appendLocked(data)
	if err != nil {
		return repository.AppendResult{}, err
	}

	s.urgency += s.scorer.Sum(encoded)

	reason := s.policy.Evaluate(size, s.urgency)
	if reason == repository.SealReasonNone {
		return result, nil
	}

	// Записи уже на диске; при сбое файл останется живым до следующей попытки
	if _, err := s.sealLocked(); err != nil {
		s.logger.Warn("Failed to seal entries file",
			"session_id", s.id.String(),
			"reason", string(reason),
			"error", err.Error(),
		)
		return result, nil
	}

	result.SealReason = reason
	return result, nil
}

func (s *SessionStore) appendLocked(data []byte) (int64, error) {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.OpenFile(s.entriesPath(), os.O_WRONLY|os.O_APPEND|os.O_CREATE, filePerm)
	if err != nil {
		return 0, fmt.Errorf("failed to open entries file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("failed to stat entries file: %w", err)
	}
	previous := info.Size()

	n, err := f.Write(data)
	if err == nil && s.sync {
		err = f.Sync()
	}
	if err != nil {
		// Откатываем частичную запись, чтобы повтор не дублировал строки
		if truncErr := f.Truncate(previous); truncErr != nil {
			s.logger.Error("Failed to roll back partial append", truncErr, "session_id", s.id.String())
		}
		_ = f.Close()
		return 0, fmt.Errorf("failed to append entries: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close entries file: %w", err)
	}

	return previous + int64(n), nil
}

func (s *SessionStore) SealEntries(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sealLocked()
}

func (s *SessionStore) sealLocked() (bool, error) {
	info, err := os.Stat(s.entriesPath())
	if errors.Is(err, fs.ErrNotExist) {
		s.urgency = 0
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat entries file: %w", err)
	}

	if info.Size() == 0 {
		s.urgency = 0
		if err := os.Remove(s.entriesPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to remove empty entries file: %w", err)
		}
		return false, nil
	}

	name, err := newOutfileName()
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(s.outDir(), dirPerm); err != nil {
		return false, fmt.Errorf("failed to create outfile directory: %w", err)
	}

	if err := os.Rename(s.entriesPath(), filepath.Join(s.outDir(), name)); err != nil {
		return false, fmt.Errorf("failed to seal entries file: %w", err)
	}

	s.urgency = 0
	s.logger.Debug("Entries file sealed", "session_id", s.id.String(), "outfile", name, "size", info.Size())
	return true, nil
}

func (s *SessionStore) ListOutfiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.outDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list outfiles: %w", err)
	}

	// ReadDir сортирует по имени, а имя кодирует время создания
	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !isOutfileName(de.Name()) {
			continue
		}
		names = append(names, de.Name())
	}

	return names, nil
}

func (s *SessionStore) LoadEntries(ctx context.Context, outfile string) ([]entity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.outfilePath(outfile)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, repository.ErrOutfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open outfile: %w", err)
	}
	defer f.Close()

	entries, err := decodeLines(f, func(line int, err error) {
		s.logger.Warn("Skipping malformed entry line",
			"session_id", s.id.String(),
			"outfile", outfile,
			"line", line,
			"error", err.Error(),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read outfile: %w", err)
	}

	return entries, nil
}

func (s *SessionStore) ReadOutfile(ctx context.Context, outfile string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.outfilePath(outfile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, repository.ErrOutfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outfile: %w", err)
	}
	return data, nil
}

func (s *SessionStore) DeleteOutfile(ctx context.Context, outfile string) error {
	p, err := s.outfilePath(outfile)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete outfile: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to delete session directory: %w", err)
	}
	s.urgency = 0

	if s.onDelete != nil {
		s.onDelete(s.id)
	}
	return nil
}

// Stats reports the on-disk footprint of the session.
func (s *SessionStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	urgency := s.urgency
	s.mu.Unlock()

	stats := Stats{Urgency: urgency}

	if _, err := os.Stat(s.metadataPath()); err == nil {
		stats.HasMetadata = true
	}
	if info, err := os.Stat(s.entriesPath()); err == nil {
		stats.LiveBytes = info.Size()
	}

	outfiles, err := s.ListOutfiles(ctx)
	if err != nil {
		return stats, err
	}
	stats.Outfiles = len(outfiles)
	for _, name := range outfiles {
		if info, err := os.Stat(filepath.Join(s.outDir(), name)); err == nil {
			stats.OutBytes += info.Size()
		}
	}

	return stats, nil
}

func (s *SessionStore) outfilePath(outfile string) (string, error) {
	if !isOutfileName(outfile) {
		return "", fmt.Errorf("invalid outfile name %q", outfile)
	}
	return filepath.Join(s.outDir(), outfile), nil
}

// newOutfileName returns a UUIDv7 file name; v7 ids sort by creation time.
func newOutfileName() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate outfile name: %w", err)
	}
	return id.String() + outfileExt, nil
}

func isOutfileName(name string) bool {
	if filepath.Base(name) != name || !strings.HasSuffix(name, outfileExt) {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(name, outfileExt))
	return err == nil
}

func writeFileAtomic(path string, data []byte, syncWrites bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if syncWrites {
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
			return fmt.Errorf("failed to sync temp file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
