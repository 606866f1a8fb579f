package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stagehand-dev/stagehand/internal/store"
	"github.com/stagehand-dev/stagehand/pkg/models"
)

// scriptedExec returns canned outputs (or errors) in order and counts calls.
type scriptedExec struct {
	calls   int
	outputs []string
	errs    []error
}

func (s *scriptedExec) Execute(_ context.Context, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.outputs) {
		return s.outputs[i], nil
	}
	return "output", nil
}

// scriptedVerifier returns canned verdicts in order; out of script, it passes.
type scriptedVerifier struct {
	calls    int
	verdicts []bool
}

func (s *scriptedVerifier) Verify(_ context.Context, raw string, expected []string) (models.VerificationResult, error) {
	i := s.calls
	s.calls++
	pass := true
	if i < len(s.verdicts) {
		pass = s.verdicts[i]
	}
	items := make([]models.VerificationItem, len(expected))
	for j := range expected {
		items[j] = models.VerificationItem{Pass: pass}
		if !pass {
			items[j].Note = "missing: " + expected[j]
		}
	}
	return models.VerificationResult{Items: items, Overall: pass, Raw: raw}, nil
}

type fixture struct {
	store  *store.Store
	engine *Engine
	exec   *scriptedExec
	verify *scriptedVerifier
	ids    map[string]string
	listID string
}

func newFixture(t *testing.T, specs []store.TaskSpec, opts ...EngineOption) *fixture {
	t.Helper()
	files, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st := store.New(files)
	listID, ids, err := st.AddTasks("coordinator", "ship the release", "", specs)
	if err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	exec := &scriptedExec{}
	verify := &scriptedVerifier{}
	e := New(st, exec, verify, opts...)
	for _, id := range ids {
		if err := e.SetContext(id, "work from the repo root"); err != nil {
			t.Fatalf("SetContext: %v", err)
		}
	}
	return &fixture{store: st, engine: e, exec: exec, verify: verify, ids: ids, listID: listID}
}

func delegated(name string, deps ...string) store.TaskSpec {
	return store.TaskSpec{
		Name:         name,
		Description:  "produce " + name,
		Dependencies: deps,
		Mode:         models.ModeDelegated,
	}
}

func primary(name string) store.TaskSpec {
	return store.TaskSpec{Name: name, Description: "produce " + name, Mode: models.ModePrimary}
}

func TestExecuteDelegatedPassesFirstTry(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("build")})
	f.exec.outputs = []string{"binary at dist/app"}

	task, err := f.engine.Execute(context.Background(), f.ids["build"])
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", task.Status)
	}
	if task.ActualOutput != "binary at dist/app" {
		t.Errorf("output = %q", task.ActualOutput)
	}
	if task.IterationCount != 0 {
		t.Errorf("iteration count = %d, want 0", task.IterationCount)
	}
	if f.exec.calls != 1 {
		t.Errorf("delegate calls = %d, want 1", f.exec.calls)
	}
}

func TestExecuteRepairThenPass(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("build")})
	f.verify.verdicts = []bool{false, false, true}

	task, err := f.engine.Execute(context.Background(), f.ids["build"])
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", task.Status)
	}
	if task.IterationCount != 2 {
		t.Errorf("iteration count = %d, want 2", task.IterationCount)
	}
	if f.exec.calls != 3 {
		t.Errorf("delegate calls = %d, want 3", f.exec.calls)
	}
}

func TestExecuteRepairBudgetExhausted(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("build")})
	f.verify.verdicts = []bool{false, false, false}

	task, err := f.engine.Execute(context.Background(), f.ids["build"])
	if !errors.Is(err, ErrVerificationExhausted) {
		t.Fatalf("expected ErrVerificationExhausted, got %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", task.Status)
	}
	if task.IterationCount != 3 {
		t.Errorf("iteration count = %d, want 3", task.IterationCount)
	}
	// The failing attempt consumes the last repair; there is no fourth call.
	if f.exec.calls != 3 {
		t.Errorf("delegate calls = %d, want 3", f.exec.calls)
	}
	if task.Verdict == nil || task.Verdict.Overall {
		t.Errorf("failing verdict not retained: %+v", task.Verdict)
	}
}

func TestExecutePreflightOrder(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("dep"), delegated("blocked", "dep")})

	// Dependencies incomplete.
	_, err := f.engine.Execute(context.Background(), f.ids["blocked"])
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	if len(pre.Unmet) != 1 || pre.Unmet[0] != "dep" {
		t.Errorf("unmet = %v, want [dep]", pre.Unmet)
	}

	// Missing context is checked before dependencies.
	if err := f.engine.SetContext(f.ids["blocked"], ""); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if _, err := f.engine.Execute(context.Background(), f.ids["blocked"]); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("expected ErrMissingContext, got %v", err)
	}
}

func TestExecuteSingleRunnerPerList(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{primary("first"), primary("second")})

	if _, err := f.engine.Execute(context.Background(), f.ids["first"]); err != nil {
		t.Fatalf("Execute first: %v", err)
	}
	_, err := f.engine.Execute(context.Background(), f.ids["second"])
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	// Reporting the first frees the list.
	if err := f.engine.Report(f.ids["first"], true, "done"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if _, err := f.engine.Execute(context.Background(), f.ids["second"]); err != nil {
		t.Fatalf("Execute second after report: %v", err)
	}
}

// passVerifier approves everything. Stateless, so safe to share across
// goroutines.
type passVerifier struct{}

func (passVerifier) Verify(_ context.Context, raw string, expected []string) (models.VerificationResult, error) {
	items := make([]models.VerificationItem, len(expected))
	for i := range expected {
		items[i] = models.VerificationItem{Pass: true}
	}
	return models.VerificationResult{Items: items, Overall: true, Raw: raw}, nil
}

// gateExec signals when a dispatch reaches it and blocks until released.
type gateExec struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateExec) Execute(ctx context.Context, _ string) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return "gated output", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestConcurrentExecuteSingleWinner(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("first"), delegated("second")})
	gate := &gateExec{started: make(chan struct{}, 2), release: make(chan struct{})}
	f.engine.exec = gate

	results := make(chan error, 2)
	for _, name := range []string{"first", "second"} {
		go func(taskID string) {
			_, err := f.engine.Execute(context.Background(), taskID)
			results <- err
		}(f.ids[name])
	}

	// Exactly one racing dispatch reaches the delegate; the other is
	// rejected before any work starts.
	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("no dispatch reached the delegate")
	}
	if loser := <-results; !errors.Is(loser, ErrConcurrencyConflict) {
		t.Fatalf("loser error = %v, want ErrConcurrencyConflict", loser)
	}

	close(gate.release)
	if winner := <-results; winner != nil {
		t.Fatalf("winner error = %v", winner)
	}

	summary, err := f.store.GetSummary(f.listID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.Completed != 1 || summary.Pending != 1 {
		t.Errorf("counts = %d completed, %d pending; want 1 and 1", summary.Completed, summary.Pending)
	}
}

func TestIndependentListsExecuteConcurrently(t *testing.T) {
	files, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st := store.New(files)
	gate := &gateExec{started: make(chan struct{}, 2), release: make(chan struct{})}
	e := New(st, gate, passVerifier{})

	var taskIDs []string
	for _, owner := range []string{"alpha", "beta"} {
		_, batch, err := st.AddTasks(owner, "goal for "+owner, "", []store.TaskSpec{delegated("work")})
		if err != nil {
			t.Fatalf("AddTasks(%s): %v", owner, err)
		}
		id := batch["work"]
		if err := e.SetContext(id, "work from the repo root"); err != nil {
			t.Fatalf("SetContext: %v", err)
		}
		taskIDs = append(taskIDs, id)
	}

	results := make(chan error, 2)
	for _, id := range taskIDs {
		go func(taskID string) {
			_, err := e.Execute(context.Background(), taskID)
			results <- err
		}(id)
	}

	// The single-runner rule is per list, not global: both lists must be
	// in flight at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-gate.started:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of 2 lists dispatched", i)
		}
	}
	close(gate.release)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
}

type recordedTransition struct {
	listID  string
	taskID  string
	from    models.TaskStatus
	to      models.TaskStatus
	version int
}

type recordingAudit struct {
	mu          sync.Mutex
	transitions []recordedTransition
	verdicts    int
}

func (r *recordingAudit) RecordTransition(listID, taskID string, from, to models.TaskStatus, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, recordedTransition{listID, taskID, from, to, version})
	return nil
}

func (r *recordingAudit) RecordVerdict(string, int, bool, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts++
	return nil
}

func TestAuditRecordsListVersions(t *testing.T) {
	audit := &recordingAudit{}
	f := newFixture(t, []store.TaskSpec{delegated("build")}, WithAudit(audit))

	if _, err := f.engine.Execute(context.Background(), f.ids["build"]); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(audit.transitions) != 2 {
		t.Fatalf("got %d transitions, want 2", len(audit.transitions))
	}
	// Creation commits v1 and the context write v2, so the running
	// transition lands as v3 and completion as v4.
	want := []struct {
		to      models.TaskStatus
		version int
	}{
		{models.TaskStatusRunning, 3},
		{models.TaskStatusCompleted, 4},
	}
	for i, w := range want {
		got := audit.transitions[i]
		if got.to != w.to || got.version != w.version {
			t.Errorf("transition %d = %s v%d, want %s v%d", i, got.to, got.version, w.to, w.version)
		}
		if got.listID != f.listID || got.taskID != f.ids["build"] {
			t.Errorf("transition %d recorded ids %s/%s", i, got.listID, got.taskID)
		}
	}
	if audit.verdicts != 1 {
		t.Errorf("verdicts = %d, want 1", audit.verdicts)
	}
}

func TestExecuteTransportErrorLeavesRunning(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("build")})
	f.exec.errs = []error{errors.New("connection reset")}
	f.exec.outputs = []string{"", "recovered output"}

	_, err := f.engine.Execute(context.Background(), f.ids["build"])
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}

	task, _ := f.store.GetTask(f.ids["build"])
	if task.Status != models.TaskStatusRunning {
		t.Errorf("status = %s, want running after transport error", task.Status)
	}
	if task.IterationCount != 0 {
		t.Errorf("transport error consumed a repair attempt: %d", task.IterationCount)
	}

	// Resume picks the loop back up without a fresh dispatch.
	resumed, err := f.engine.Resume(context.Background(), f.ids["build"])
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != models.TaskStatusCompleted || resumed.ActualOutput != "recovered output" {
		t.Errorf("resume did not complete the task: %+v", resumed)
	}
}

func TestExecuteCompletedTaskRejected(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("build")})
	if _, err := f.engine.Execute(context.Background(), f.ids["build"]); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := f.engine.Execute(context.Background(), f.ids["build"]); !errors.Is(err, ErrCompletedImmutable) {
		t.Fatalf("expected ErrCompletedImmutable, got %v", err)
	}
}

func TestReportPrimaryOutcomes(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{primary("a")})

	// Reporting a pending task is invalid.
	if err := f.engine.Report(f.ids["a"], true, "x"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if _, err := f.engine.Execute(context.Background(), f.ids["a"]); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := f.engine.Report(f.ids["a"], false, ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	task, _ := f.store.GetTask(f.ids["a"])
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", task.Status)
	}
}

func TestAbandonRules(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("done"), delegated("open")})
	if _, err := f.engine.Execute(context.Background(), f.ids["done"]); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := f.engine.Abandon(f.ids["done"]); !errors.Is(err, ErrCompletedImmutable) {
		t.Fatalf("expected ErrCompletedImmutable, got %v", err)
	}
	if err := f.engine.Abandon(f.ids["open"]); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if err := f.engine.Abandon(f.ids["open"]); err != nil {
		t.Fatalf("Abandon twice: %v", err)
	}
	task, _ := f.store.GetTask(f.ids["open"])
	if task.Status != models.TaskStatusAbandoned {
		t.Errorf("status = %s, want abandoned", task.Status)
	}
}

func TestPromptCarriesDependencyOutputs(t *testing.T) {
	f := newFixture(t, []store.TaskSpec{delegated("dep"), delegated("target", "dep")})
	f.exec.outputs = []string{"dep artifact contents"}

	if _, err := f.engine.Execute(context.Background(), f.ids["dep"]); err != nil {
		t.Fatalf("Execute dep: %v", err)
	}

	var prompt string
	f.exec.outputs = append(f.exec.outputs, "target output")
	captured := &captureExec{inner: f.exec, last: &prompt}
	f.engine.exec = captured

	if _, err := f.engine.Execute(context.Background(), f.ids["target"]); err != nil {
		t.Fatalf("Execute target: %v", err)
	}
	if !strings.Contains(prompt, "### dep") || !strings.Contains(prompt, "dep artifact contents") {
		t.Errorf("prompt missing dependency output:\n%s", prompt)
	}
	if !strings.Contains(prompt, "ship the release") {
		t.Errorf("prompt missing main goal:\n%s", prompt)
	}
}

type captureExec struct {
	inner ExecutionDelegate
	last  *string
}

func (c *captureExec) Execute(ctx context.Context, content string) (string, error) {
	*c.last = content
	return c.inner.Execute(ctx, content)
}
