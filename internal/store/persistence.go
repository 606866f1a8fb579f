package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

// maxSnapshots bounds the per-list snapshot history. The oldest snapshot is
// evicted first.
const maxSnapshots = 10

// Record is the durable form of one task list: its current state plus the
// rolling snapshot history, keyed by list id.
type Record struct {
	State     *models.TaskList  `json:"state"`
	Snapshots []models.Snapshot `json:"snapshots"`
}

// Persister stores task list records durably. Save must be atomic: a crash
// mid-write may lose the update but never corrupts the previous record.
type Persister interface {
	Save(listID string, rec *Record) error
	Load(listID string) (*Record, error)
	LoadAll() (map[string]*Record, error)
}

// FileStore persists each task list as a JSON file under a single directory,
// written to a temp file and renamed into place.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory records are written to.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(listID string) string {
	return filepath.Join(f.dir, listID+".json")
}

// Save writes the record atomically: temp file, fsync, rename.
func (f *FileStore) Save(listID string, rec *Record) error {
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal list %s: %w", listID, err)
	}

	tmp, err := os.CreateTemp(f.dir, ".stagehand-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-ops once the rename succeeded.
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path(listID)); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// Load reads one record.
func (f *FileStore) Load(listID string) (*Record, error) {
	content, err := os.ReadFile(f.path(listID))
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", listID, err)
	}
	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, fmt.Errorf("decode list %s: %w", listID, err)
	}
	return &rec, nil
}

// LoadAll reads every record in the directory. Temp files are skipped.
func (f *FileStore) LoadAll() (map[string]*Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	records := make(map[string]*Record)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		listID := strings.TrimSuffix(name, ".json")
		rec, err := f.Load(listID)
		if err != nil {
			return nil, err
		}
		records[listID] = rec
	}
	return records, nil
}
