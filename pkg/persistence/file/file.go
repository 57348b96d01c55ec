// Package file provides file-based persistence for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rivetflow/rivet/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents. Per-execution writes are serialized through a keyed
// lock registry, matching the single-writer-per-execution invariant.
type Persistence struct {
	root          string
	locks         *lockRegistry
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	stepLogRepo   *StepLogRepository
	bindingRepo   *WebhookBindingRepository
}

// NewPersistence creates a file persistence layer rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	locks := newLockRegistry()

	return &Persistence{
		root:          cleanRoot,
		locks:         locks,
		workflowRepo:  &WorkflowRepository{root: cleanRoot},
		executionRepo: &ExecutionRepository{root: cleanRoot, locks: locks},
		stepLogRepo:   &StepLogRepository{root: cleanRoot, locks: locks},
		bindingRepo:   &WebhookBindingRepository{root: cleanRoot, mu: &sync.Mutex{}},
	}
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) StepLogRepository() persistence.StepLogRepository {
	return fp.stepLogRepo
}

func (fp *Persistence) WebhookBindingRepository() persistence.WebhookBindingRepository {
	return fp.bindingRepo
}

// HealthCheck verifies the root directory is usable.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0o755); err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup; nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// lockRegistry hands out one mutex per execution id.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the per-id mutex and returns its release func.
func (r *lockRegistry) acquire(id string) func() {
	r.mu.Lock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}

	r.mu.Unlock()
	lock.Lock()

	return lock.Unlock
}

func readDocument(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}

func writeDocument(path string, in any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
