// Package store owns task lists: creation, batch insertion with name
// resolution and cycle rejection, reads, summaries, and snapshot-backed
// persistence with rollback.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-dev/stagehand/internal/expect"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/pkg/models"
)

// TaskSpec describes one task in an AddTasks batch. Dependencies may
// reference other batch entries by name, or existing tasks by name or id.
type TaskSpec struct {
	Name         string               `yaml:"name"`
	Description  string               `yaml:"description"`
	Priority     int                  `yaml:"priority"`
	Dependencies []string             `yaml:"depends_on"`
	Mode         models.ExecutionMode `yaml:"mode"`
}

// listEntry pairs a list with its lock and snapshot history. Mutations hold
// mu exclusively; reads hold it shared.
type listEntry struct {
	mu        sync.RWMutex
	list      *models.TaskList
	snapshots []models.Snapshot
}

// Store is the task graph store. Multiple lists may be processed
// concurrently; each is guarded by its own lock. The store-level lock only
// protects the lookup maps and is never held across a snapshot write, so
// unrelated owners' lists do not serialize behind each other.
//
// Lock order is always s.mu before entry.mu.
type Store struct {
	mu      sync.RWMutex
	lists   map[string]*listEntry
	byOwner map[string]string
	byTask  map[string]string

	files Persister
	logf  func(format string, args ...interface{})
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a debug logging function.
func WithLogger(fn func(format string, args ...interface{})) Option {
	return func(s *Store) {
		if fn != nil {
			s.logf = fn
		}
	}
}

// New creates an empty store over the given persister.
func New(p Persister, opts ...Option) *Store {
	s := &Store{
		lists:   make(map[string]*listEntry),
		byOwner: make(map[string]string),
		byTask:  make(map[string]string),
		files:   p,
		logf:    func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and restores every persisted list from its most
// recent record.
func Open(p Persister, opts ...Option) (*Store, error) {
	s := New(p, opts...)
	records, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	for listID, rec := range records {
		s.install(listID, rec)
	}
	return s, nil
}

// install registers a loaded record, replacing any in-memory copy.
func (s *Store) install(listID string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lists[listID]
	if !ok {
		entry = &listEntry{}
		s.lists[listID] = entry
	}
	entry.mu.Lock()
	entry.list = rec.State
	entry.snapshots = rec.Snapshots
	entry.mu.Unlock()

	s.byOwner[rec.State.Owner] = listID
	s.reindexTasksLocked(listID, rec.State)
	s.logf("installed list %s (%d tasks)", listID, len(rec.State.Tasks))
}

// reindexTasksLocked rebuilds the task index for one list from its current
// state, dropping ids the list no longer contains. Caller holds s.mu.
func (s *Store) reindexTasksLocked(listID string, list *models.TaskList) {
	for id, lid := range s.byTask {
		if lid != listID {
			continue
		}
		if _, ok := list.Tasks[id]; !ok {
			delete(s.byTask, id)
		}
	}
	for id := range list.Tasks {
		s.byTask[id] = listID
	}
}

// AddTasks creates the owner's list on first call and appends the batch,
// resolving dependency names to ids. The batch is atomic: duplicate names,
// malformed specs, unknown dependencies or cycles reject the whole call with
// no partial insert. Returns the list id and a name-to-id map for the batch.
func (s *Store) AddTasks(owner, mainGoal, background string, specs []TaskSpec) (string, map[string]string, error) {
	if len(specs) == 0 {
		return "", nil, ErrEmptyBatch
	}

	// Find or create the owner's list under the index lock; the batch
	// itself commits under the list lock only.
	s.mu.Lock()
	listID, exists := s.byOwner[owner]
	var entry *listEntry
	if exists {
		entry = s.lists[listID]
	} else {
		listID = "tl-" + uuid.New().String()[:8]
		entry = &listEntry{list: &models.TaskList{
			ID:         listID,
			Owner:      owner,
			MainGoal:   mainGoal,
			Background: background,
			Tasks:      make(map[string]*models.Task),
		}}
		s.lists[listID] = entry
		s.byOwner[owner] = listID
	}
	s.mu.Unlock()

	entry.mu.Lock()
	nameToID, version, err := s.insertBatch(entry, listID, specs)
	entry.mu.Unlock()
	if err != nil {
		if !exists {
			s.dropIfEmpty(owner, listID, entry)
		}
		return "", nil, err
	}

	s.mu.Lock()
	s.lists[listID] = entry
	s.byOwner[owner] = listID
	for _, id := range nameToID {
		s.byTask[id] = listID
	}
	s.mu.Unlock()

	s.logf("list %s: added %d tasks (version %d)", listID, len(nameToID), version)
	return listID, nameToID, nil
}

// insertBatch validates, resolves and commits one batch. Caller holds the
// entry lock. On any error the list is left exactly as it was.
func (s *Store) insertBatch(entry *listEntry, listID string, specs []TaskSpec) (map[string]string, int, error) {
	list := entry.list

	// First pass: validate specs, assign ids, map batch names.
	now := time.Now().UTC()
	nameToID := make(map[string]string, len(specs))
	batch := make([]*models.Task, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, 0, &InvalidSpecError{Reason: "name must not be empty"}
		}
		if !spec.Mode.Valid() {
			return nil, 0, &InvalidSpecError{Task: spec.Name, Reason: fmt.Sprintf("unknown execution mode %q", spec.Mode)}
		}
		if _, dup := nameToID[spec.Name]; dup {
			return nil, 0, &DuplicateNameError{Name: spec.Name}
		}
		if list.TaskByName(spec.Name) != nil {
			return nil, 0, &DuplicateNameError{Name: spec.Name}
		}

		id := uuid.New().String()
		nameToID[spec.Name] = id
		batch = append(batch, &models.Task{
			ID:             id,
			Name:           spec.Name,
			Description:    spec.Description,
			ExpectedOutput: expect.Items(spec.Description),
			Priority:       spec.Priority,
			Mode:           spec.Mode,
			Status:         models.TaskStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	// Second pass: resolve dependency references. Batch names win, then
	// existing task names, then existing ids.
	for i, spec := range specs {
		for _, ref := range spec.Dependencies {
			switch {
			case nameToID[ref] != "":
				batch[i].Dependencies = append(batch[i].Dependencies, nameToID[ref])
			case list.TaskByName(ref) != nil:
				batch[i].Dependencies = append(batch[i].Dependencies, list.TaskByName(ref).ID)
			case list.Tasks[ref] != nil:
				batch[i].Dependencies = append(batch[i].Dependencies, ref)
			default:
				return nil, 0, &UnknownDependencyError{Task: spec.Name, Ref: ref}
			}
		}
	}

	// Cycle check over existing edges plus the batch.
	edges := make(map[string][]string, len(list.Tasks)+len(batch))
	for id, t := range list.Tasks {
		edges[id] = t.Dependencies
	}
	for _, t := range batch {
		edges[t.ID] = t.Dependencies
	}
	if err := graph.ValidateAcyclic(edges); err != nil {
		return nil, 0, err
	}

	// Commit: insert, snapshot, persist. Rolled back if the write fails.
	for _, t := range batch {
		list.Tasks[t.ID] = t
	}
	prior := entry.snapshots
	list.Version++
	s.appendSnapshot(entry)

	if err := s.files.Save(listID, &Record{State: list, Snapshots: entry.snapshots}); err != nil {
		for _, t := range batch {
			delete(list.Tasks, t.ID)
		}
		list.Version--
		entry.snapshots = prior
		return nil, 0, &PersistenceError{ListID: listID, Err: err}
	}
	return nameToID, list.Version, nil
}

// dropIfEmpty deregisters a list created for a batch that then failed, so a
// rejected first batch leaves no trace. The list survives if another batch
// landed on it in the meantime.
func (s *Store) dropIfEmpty(owner, listID string, entry *listEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if len(entry.list.Tasks) > 0 || entry.list.Version > 0 {
		return
	}
	delete(s.lists, listID)
	if s.byOwner[owner] == listID {
		delete(s.byOwner, owner)
	}
}

// appendSnapshot captures the current list state, evicting the oldest entry
// once the ring exceeds its bound. Caller holds the entry lock.
func (s *Store) appendSnapshot(entry *listEntry) {
	snap := models.Snapshot{
		Version: entry.list.Version,
		TakenAt: time.Now().UTC(),
		State:   entry.list.Clone(),
	}
	entry.snapshots = append(entry.snapshots, snap)
	if len(entry.snapshots) > maxSnapshots {
		entry.snapshots = entry.snapshots[len(entry.snapshots)-maxSnapshots:]
	}
}

// entryForTask resolves a task id to its list entry.
func (s *Store) entryForTask(taskID string) (*listEntry, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listID, ok := s.byTask[taskID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	entry, ok := s.lists[listID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return entry, listID, nil
}

// entryForList resolves a list id to its entry.
func (s *Store) entryForList(listID string) (*listEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.lists[listID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}
	return entry, nil
}

// Update runs fn against the task's list under the list's exclusive lock.
// If fn returns nil, the change is versioned, snapshotted and persisted as
// one mutation; if fn errors or the write fails, in-memory state is rolled
// back to the last persisted snapshot and the error is returned.
func (s *Store) Update(taskID string, fn func(list *models.TaskList, task *models.Task) error) error {
	entry, listID, err := s.entryForTask(taskID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	task, ok := entry.list.Tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	backup := entry.list.Clone()
	if err := fn(entry.list, task); err != nil {
		entry.list = backup
		return err
	}

	task.UpdatedAt = time.Now().UTC()
	prior := entry.snapshots
	entry.list.Version++
	s.appendSnapshot(entry)

	if err := s.files.Save(listID, &Record{State: entry.list, Snapshots: entry.snapshots}); err != nil {
		entry.list = backup
		entry.snapshots = prior
		return &PersistenceError{ListID: listID, Err: err}
	}
	return nil
}

// GetTask returns a copy of the task. Read-only; holds only shared locks.
func (s *Store) GetTask(taskID string) (*models.Task, error) {
	entry, _, err := s.entryForTask(taskID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	task, ok := entry.list.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return task.Clone(), nil
}

// ListForTask returns the id of the list owning the task.
func (s *Store) ListForTask(taskID string) (string, error) {
	_, listID, err := s.entryForTask(taskID)
	return listID, err
}

// ListTasks returns copies of every task in the list, ordered by priority
// descending then creation time.
func (s *Store) ListTasks(listID string) ([]*models.Task, error) {
	entry, err := s.entryForList(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(entry.list.Tasks))
	for _, t := range entry.list.Tasks {
		tasks = append(tasks, t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// ListIDs returns the ids of all known lists, sorted.
func (s *Store) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.lists))
	for id := range s.lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListForOwner returns the owner's list id, if any.
func (s *Store) ListForOwner(owner string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[owner]
	return id, ok
}

// GetSummary reports per-status counts and per-task details for the list.
func (s *Store) GetSummary(listID string) (*models.ListSummary, error) {
	tasks, err := s.ListTasks(listID)
	if err != nil {
		return nil, err
	}
	entry, err := s.entryForList(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	summary := &models.ListSummary{
		ListID:   listID,
		Owner:    entry.list.Owner,
		MainGoal: entry.list.MainGoal,
		Version:  entry.list.Version,
	}
	entry.mu.RUnlock()

	summary.Total = len(tasks)
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusPending:
			summary.Pending++
		case models.TaskStatusRunning:
			summary.Running++
		case models.TaskStatusCompleted:
			summary.Completed++
		case models.TaskStatusFailed:
			summary.Failed++
		case models.TaskStatusAbandoned:
			summary.Abandoned++
		}
		summary.Tasks = append(summary.Tasks, models.TaskSummary{
			ID:           t.ID,
			Name:         t.Name,
			Status:       t.Status,
			Priority:     t.Priority,
			Dependencies: t.Dependencies,
			ActualOutput: t.ActualOutput,
		})
	}
	return summary, nil
}

// NextReady returns the highest-priority pending task whose dependencies are
// all completed, or nil if none is ready. Ties break on creation time.
func (s *Store) NextReady(listID string) (*models.Task, error) {
	entry, err := s.entryForList(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	var best *models.Task
	for _, t := range entry.list.Tasks {
		if t.Status != models.TaskStatusPending || !graph.IsReady(t, entry.list) {
			continue
		}
		if best == nil ||
			t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

// ReadyTasks returns every pending task whose dependencies are all
// completed, ordered by priority descending then creation time.
func (s *Store) ReadyTasks(listID string) ([]*models.Task, error) {
	entry, err := s.entryForList(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	var ready []*models.Task
	for _, t := range entry.list.Tasks {
		if t.Status == models.TaskStatusPending && graph.IsReady(t, entry.list) {
			ready = append(ready, t.Clone())
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready, nil
}

// DelegateView builds the restricted view handed to a delegate for one task:
// the task itself, the list goal and background, and the published output of
// completed dependencies. A dependency's output is visible only after it
// completed and its snapshot was durably written, which Update guarantees.
func (s *Store) DelegateView(taskID string) (*models.DelegateView, error) {
	entry, listID, err := s.entryForTask(taskID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	task, ok := entry.list.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	view := &models.DelegateView{
		ListID:     listID,
		MainGoal:   entry.list.MainGoal,
		Background: entry.list.Background,
		Task:       task.Clone(),
	}
	for _, depID := range task.Dependencies {
		dep, ok := entry.list.Tasks[depID]
		if !ok || dep.Status != models.TaskStatusCompleted {
			continue
		}
		view.Dependencies = append(view.Dependencies, models.DependencyOutput{
			Name:   dep.Name,
			Output: dep.ActualOutput,
		})
	}
	return view, nil
}

// Snapshots returns a copy of the list's retained snapshot history.
func (s *Store) Snapshots(listID string) ([]models.Snapshot, error) {
	entry, err := s.entryForList(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return append([]models.Snapshot(nil), entry.snapshots...), nil
}

// Rollback restores a list to a retained snapshot version and persists the
// restored state. Tasks created after that snapshot cease to exist, so the
// task index is rebuilt from the restored state.
func (s *Store) Rollback(listID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lists[listID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	var target *models.Snapshot
	for i := range entry.snapshots {
		if entry.snapshots[i].Version == version {
			target = &entry.snapshots[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("list %s has no snapshot for version %d", listID, version)
	}

	backup := entry.list
	entry.list = target.State.Clone()
	if err := s.files.Save(listID, &Record{State: entry.list, Snapshots: entry.snapshots}); err != nil {
		entry.list = backup
		return &PersistenceError{ListID: listID, Err: err}
	}

	s.reindexTasksLocked(listID, entry.list)
	s.logf("list %s: rolled back to version %d", listID, version)
	return nil
}
