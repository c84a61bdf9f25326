package board

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowin/internal/domain"
)

type statusCall struct {
	TaskID string
	Status domain.TaskStatus
}

type fakePersister struct {
	mu       sync.Mutex
	statuses []statusCall
	reorders [][]domain.OrderUpdate
	err      error
}

func (f *fakePersister) SetTaskStatus(_ context.Context, taskID string, status domain.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusCall{taskID, status})
	return f.err
}

func (f *fakePersister) ReorderTasks(_ context.Context, projectID string, updates []domain.OrderUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reorders = append(f.reorders, updates)
	return f.err
}

func newFixture() (*Board, *fakePersister, *Reconciler) {
	b := New("p1")
	b.Replace([]domain.Task{
		task("t1", domain.StatusTodo, 0),
		task("t2", domain.StatusTodo, 1),
		task("t3", domain.StatusTodo, 2),
		task("t4", domain.StatusTodo, 3),
		task("p1", domain.StatusInProgress, 0),
		task("d1", domain.StatusDone, 0),
	})
	p := &fakePersister{}
	return b, p, NewReconciler(b, p, nil)
}

func TestReorderWithinColumnIsDense(t *testing.T) {
	ctx := context.Background()
	b, p, r := newFixture()

	require.NoError(t, r.Start("t1"))
	r.Over(TaskTarget("t3"))
	m, err := r.Drop(ctx, TaskTarget("t3"))
	require.NoError(t, err)

	assert.Equal(t, MutationReorder, m.Kind)
	require.Len(t, p.reorders, 1)
	assert.Empty(t, p.statuses)
	want := []domain.OrderUpdate{
		{ID: "t2", Order: 0, Status: domain.StatusTodo},
		{ID: "t3", Order: 1, Status: domain.StatusTodo},
		{ID: "t1", Order: 2, Status: domain.StatusTodo},
		{ID: "t4", Order: 3, Status: domain.StatusTodo},
	}
	assert.Equal(t, want, p.reorders[0])
	assert.Equal(t, []string{"t2", "t3", "t1", "t4"}, ids(b.TasksByStatus(domain.StatusTodo)))

	_, dragging := r.Active()
	assert.False(t, dragging)
}

func TestReorderUpwards(t *testing.T) {
	_, p, r := newFixture()
	require.NoError(t, r.Start("t4"))
	_, err := r.Drop(context.Background(), TaskTarget("t2"))
	require.NoError(t, err)
	require.Len(t, p.reorders, 1)
	got := p.reorders[0]
	assert.Equal(t, "t4", got[1].ID)
	for i, u := range got {
		assert.Equal(t, i, u.Order)
	}
}

func TestDropOnColumnPersistsStatus(t *testing.T) {
	b, p, r := newFixture()
	require.NoError(t, r.Start("t2"))
	r.Over(ColumnTarget(domain.StatusDone))
	got, _ := b.Task("t2")
	assert.Equal(t, domain.StatusDone, got.Status, "hover previews the new column")

	m, err := r.Drop(context.Background(), ColumnTarget(domain.StatusDone))
	require.NoError(t, err)
	assert.Equal(t, MutationStatus, m.Kind)
	assert.Equal(t, []statusCall{{"t2", domain.StatusDone}}, p.statuses)
	assert.Empty(t, p.reorders)
}

func TestDropOnTaskInOtherColumnPersistsStatusOnly(t *testing.T) {
	_, p, r := newFixture()
	require.NoError(t, r.Start("t1"))
	m, err := r.Drop(context.Background(), TaskTarget("d1"))
	require.NoError(t, err)
	assert.Equal(t, MutationStatus, m.Kind)
	assert.Equal(t, []statusCall{{"t1", domain.StatusDone}}, p.statuses)
	assert.Empty(t, p.reorders)
}

func TestHoverThenDropOnTaskReordersTargetColumn(t *testing.T) {
	b, p, r := newFixture()
	require.NoError(t, r.Start("t1"))
	r.Over(TaskTarget("p1"))
	got, _ := b.Task("t1")
	require.Equal(t, domain.StatusInProgress, got.Status)

	m, err := r.Drop(context.Background(), TaskTarget("p1"))
	require.NoError(t, err)
	assert.Equal(t, MutationReorder, m.Kind)
	require.Len(t, p.reorders, 1)
	for i, u := range p.reorders[0] {
		assert.Equal(t, i, u.Order)
		assert.Equal(t, domain.StatusInProgress, u.Status)
	}
}

func TestDropBackOnOriginalColumnIsNoop(t *testing.T) {
	b, p, r := newFixture()
	require.NoError(t, r.Start("t2"))
	r.Over(ColumnTarget(domain.StatusInProgress))
	r.Over(ColumnTarget(domain.StatusTodo))
	m, err := r.Drop(context.Background(), ColumnTarget(domain.StatusTodo))
	require.NoError(t, err)
	assert.Equal(t, MutationNone, m.Kind)
	assert.Empty(t, p.statuses)

	got, _ := b.Task("t2")
	assert.Equal(t, domain.StatusTodo, got.Status)
}

func TestDropAfterHoverStillPersists(t *testing.T) {
	_, p, r := newFixture()
	require.NoError(t, r.Start("t2"))
	r.Over(ColumnTarget(domain.StatusDone))
	m, err := r.Drop(context.Background(), ColumnTarget(domain.StatusDone))
	require.NoError(t, err)
	assert.Equal(t, MutationStatus, m.Kind)
	require.Len(t, p.statuses, 1)
}

func TestMoveOutAndBackKeepsOrder(t *testing.T) {
	ctx := context.Background()
	b, p, r := newFixture()

	require.NoError(t, r.Start("t3"))
	r.Over(ColumnTarget(domain.StatusDone))
	_, err := r.Drop(ctx, ColumnTarget(domain.StatusDone))
	require.NoError(t, err)

	require.NoError(t, r.Start("t3"))
	r.Over(ColumnTarget(domain.StatusTodo))
	_, err = r.Drop(ctx, ColumnTarget(domain.StatusTodo))
	require.NoError(t, err)

	assert.Equal(t, []statusCall{{"t3", domain.StatusDone}, {"t3", domain.StatusTodo}}, p.statuses)
	assert.Empty(t, p.reorders)
	got, ok := b.Task("t3")
	require.True(t, ok)
	assert.Equal(t, domain.StatusTodo, got.Status)
	assert.Equal(t, 2, got.Order)
	assert.Len(t, b.Tasks(), 6)
}

func TestDropWithoutTargetOrOnSelf(t *testing.T) {
	_, p, r := newFixture()
	require.NoError(t, r.Start("t1"))
	m, err := r.Drop(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, MutationNone, m.Kind)

	require.NoError(t, r.Start("t1"))
	m, err = r.Drop(context.Background(), TaskTarget("t1"))
	require.NoError(t, err)
	assert.Equal(t, MutationNone, m.Kind)

	assert.Empty(t, p.statuses)
	assert.Empty(t, p.reorders)
}

func TestDropAfterTaskVanished(t *testing.T) {
	b, p, r := newFixture()
	require.NoError(t, r.Start("t1"))
	b.Replace([]domain.Task{task("t2", domain.StatusTodo, 0)})
	m, err := r.Drop(context.Background(), ColumnTarget(domain.StatusDone))
	require.NoError(t, err)
	assert.Equal(t, MutationNone, m.Kind)
	assert.Empty(t, p.statuses)
}

func TestSingleActiveDrag(t *testing.T) {
	_, _, r := newFixture()
	require.NoError(t, r.Start("t1"))
	assert.ErrorIs(t, r.Start("t2"), ErrDragInProgress)
	r.Cancel()
	require.NoError(t, r.Start("t2"))
	assert.ErrorIs(t, (&Reconciler{board: New("x")}).Start("nope"), ErrUnknownTask)
}

func TestPersistFailureKeepsOptimisticState(t *testing.T) {
	b, p, r := newFixture()
	p.err = errors.New("store unavailable")

	require.NoError(t, r.Start("t1"))
	r.Over(ColumnTarget(domain.StatusDone))
	m, err := r.Drop(context.Background(), ColumnTarget(domain.StatusDone))
	require.Error(t, err)
	assert.Equal(t, MutationStatus, m.Kind)

	got, _ := b.Task("t1")
	assert.Equal(t, domain.StatusDone, got.Status)
	_, dragging := r.Active()
	assert.False(t, dragging)
}

func TestDropWhileIdle(t *testing.T) {
	_, p, r := newFixture()
	m, err := r.Drop(context.Background(), ColumnTarget(domain.StatusDone))
	require.NoError(t, err)
	assert.Equal(t, MutationNone, m.Kind)
	assert.Empty(t, p.statuses)
}

func TestArrayMove(t *testing.T) {
	in := []int{0, 1, 2, 3}
	assert.Equal(t, []int{1, 2, 0, 3}, arrayMove(in, 0, 2))
	assert.Equal(t, []int{0, 3, 1, 2}, arrayMove(in, 3, 1))
	assert.Equal(t, []int{0, 1, 2, 3}, arrayMove(in, 2, 2))
	assert.Equal(t, []int{0, 1, 2, 3}, in)
}
