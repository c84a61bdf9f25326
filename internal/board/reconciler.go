package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"flowin/internal/domain"
	"flowin/internal/metrics"
)

// Persister writes drag results to the store.
type Persister interface {
	SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error
	ReorderTasks(ctx context.Context, projectID string, updates []domain.OrderUpdate) error
}

var (
	ErrDragInProgress = errors.New("another drag is in progress")
	ErrUnknownTask    = errors.New("task not on board")
)

type TargetKind int

const (
	TargetColumn TargetKind = iota
	TargetTask
)

// Target is what the pointer is over: a column (ID is its status) or a task.
type Target struct {
	Kind TargetKind
	ID   string
}

func ColumnTarget(status domain.TaskStatus) *Target {
	return &Target{Kind: TargetColumn, ID: string(status)}
}

func TaskTarget(taskID string) *Target {
	return &Target{Kind: TargetTask, ID: taskID}
}

type MutationKind string

const (
	MutationNone    MutationKind = "none"
	MutationStatus  MutationKind = "status"
	MutationReorder MutationKind = "reorder"
)

// Mutation describes what a drop persisted.
type Mutation struct {
	Kind   MutationKind
	TaskID string
	Status domain.TaskStatus
	Orders []domain.OrderUpdate
}

// Reconciler runs the Idle -> Dragging -> Idle gesture for one board.
type Reconciler struct {
	board   *Board
	persist Persister
	log     *zap.Logger

	mu       sync.Mutex
	dragging bool
	activeID string
	original domain.TaskStatus
}

func NewReconciler(b *Board, p Persister, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{board: b, persist: p, log: log}
}

// Start picks up a task and remembers its status at pick-up.
func (r *Reconciler) Start(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dragging {
		return ErrDragInProgress
	}
	t, ok := r.board.Task(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	r.dragging = true
	r.activeID = t.ID
	r.original = t.Status
	return nil
}

// Active reports the dragged task id, if any.
func (r *Reconciler) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.dragging
}

// Over previews a hover: crossing into another column flips the dragged
// task's status in memory so the column renders it there.
func (r *Reconciler) Over(target *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dragging || target == nil || target.ID == r.activeID {
		return
	}
	active, ok := r.board.Task(r.activeID)
	if !ok {
		return
	}
	next, ok := r.targetStatus(target)
	if !ok || next == active.Status {
		return
	}
	r.board.setStatus(active.ID, next)
}

func (r *Reconciler) targetStatus(target *Target) (domain.TaskStatus, bool) {
	switch target.Kind {
	case TargetColumn:
		s := domain.TaskStatus(target.ID)
		return s, s.Valid()
	case TargetTask:
		over, ok := r.board.Task(target.ID)
		if !ok {
			return "", false
		}
		return over.Status, true
	}
	return "", false
}

// Cancel abandons the drag without persisting. Any hover preview stays
// until the next snapshot replaces it.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Reconciler) reset() {
	r.dragging = false
	r.activeID = ""
	r.original = ""
}

// Drop ends the drag. A nil target, the dragged task itself, or a task that
// vanished mid-drag resolve to no mutation. A persistence failure is logged
// and returned; the optimistic local state is not rolled back.
func (r *Reconciler) Drop(ctx context.Context, target *Target) (Mutation, error) {
	r.mu.Lock()
	if !r.dragging {
		r.mu.Unlock()
		return Mutation{Kind: MutationNone}, nil
	}
	activeID, original := r.activeID, r.original
	r.reset()
	r.mu.Unlock()

	none := Mutation{Kind: MutationNone, TaskID: activeID}
	if target == nil || target.ID == activeID {
		metrics.RecordDrop(string(MutationNone))
		return none, nil
	}
	active, ok := r.board.Task(activeID)
	if !ok {
		metrics.RecordDrop(string(MutationNone))
		return none, nil
	}

	var m Mutation
	switch target.Kind {
	case TargetColumn:
		status := domain.TaskStatus(target.ID)
		if !status.Valid() {
			metrics.RecordDrop(string(MutationNone))
			return none, nil
		}
		r.board.setStatus(activeID, status)
		// compare with the status at pick-up, not the hover preview
		if status == original {
			metrics.RecordDrop(string(MutationNone))
			return none, nil
		}
		m = Mutation{Kind: MutationStatus, TaskID: activeID, Status: status}
	case TargetTask:
		over, ok := r.board.Task(target.ID)
		if !ok {
			metrics.RecordDrop(string(MutationNone))
			return none, nil
		}
		if active.Status == over.Status {
			orders := reorder(r.board.TasksByStatus(over.Status), activeID, over.ID)
			if orders == nil {
				metrics.RecordDrop(string(MutationNone))
				return none, nil
			}
			r.board.applyOrders(orders)
			m = Mutation{Kind: MutationReorder, TaskID: activeID, Status: over.Status, Orders: orders}
		} else {
			r.board.setStatus(activeID, over.Status)
			m = Mutation{Kind: MutationStatus, TaskID: activeID, Status: over.Status}
		}
	default:
		metrics.RecordDrop(string(MutationNone))
		return none, nil
	}

	if err := r.apply(ctx, m); err != nil {
		metrics.RecordDrop("failed")
		r.log.Error("persist drop failed",
			zap.String("project_id", r.board.ProjectID()),
			zap.String("task_id", activeID),
			zap.String("kind", string(m.Kind)),
			zap.Error(err))
		return m, err
	}
	metrics.RecordDrop(string(m.Kind))
	return m, nil
}

func (r *Reconciler) apply(ctx context.Context, m Mutation) error {
	switch m.Kind {
	case MutationStatus:
		return r.persist.SetTaskStatus(ctx, m.TaskID, m.Status)
	case MutationReorder:
		return r.persist.ReorderTasks(ctx, r.board.ProjectID(), m.Orders)
	}
	return nil
}

// reorder moves activeID to overID's index within column and renumbers the
// whole column from zero. It returns nil when either task is missing.
func reorder(column []domain.Task, activeID, overID string) []domain.OrderUpdate {
	from, to := -1, -1
	for i, t := range column {
		switch t.ID {
		case activeID:
			from = i
		case overID:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return nil
	}
	moved := arrayMove(column, from, to)
	updates := make([]domain.OrderUpdate, len(moved))
	for i, t := range moved {
		updates[i] = domain.OrderUpdate{ID: t.ID, Order: i, Status: t.Status}
	}
	return updates
}

// arrayMove removes the element at from and reinserts it at to.
func arrayMove[T any](in []T, from, to int) []T {
	out := make([]T, 0, len(in))
	out = append(out, in[:from]...)
	out = append(out, in[from+1:]...)
	item := in[from]
	out = append(out[:to], append([]T{item}, out[to:]...)...)
	return out
}
