// Package board keeps the in-memory task set of one project split into
// status columns, and reconciles drag gestures into persistence calls.
package board

import (
	"context"
	"sort"
	"sync"

	"flowin/internal/domain"
)

// Board holds the latest task snapshot of a project. The live feed is
// authoritative: every snapshot replaces the whole set, including any
// optimistic change made during a drag.
type Board struct {
	mu        sync.RWMutex
	projectID string
	tasks     []domain.Task
	snapshots int
}

// Column is one status bucket in display order.
type Column struct {
	Status domain.TaskStatus
	Title  string
	Tasks  []domain.Task
}

func New(projectID string) *Board {
	return &Board{projectID: projectID}
}

func (b *Board) ProjectID() string { return b.projectID }

// Replace swaps in a full snapshot.
func (b *Board) Replace(tasks []domain.Task) {
	cp := make([]domain.Task, len(tasks))
	copy(cp, tasks)
	b.mu.Lock()
	b.tasks = cp
	b.snapshots++
	b.mu.Unlock()
}

// Snapshots counts how many snapshots have been applied.
func (b *Board) Snapshots() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshots
}

func (b *Board) Tasks() []domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make([]domain.Task, len(b.tasks))
	copy(cp, b.tasks)
	return cp
}

func (b *Board) Task(id string) (domain.Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// TasksByStatus returns one column sorted by order. Equal orders keep snapshot order.
func (b *Board) TasksByStatus(status domain.TaskStatus) []domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bucket(b.tasks, status)
}

func (b *Board) Columns() []Column {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cols := make([]Column, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		cols = append(cols, Column{Status: s, Title: s.Title(), Tasks: bucket(b.tasks, s)})
	}
	return cols
}

func bucket(tasks []domain.Task, status domain.TaskStatus) []domain.Task {
	res := []domain.Task{}
	for _, t := range tasks {
		if t.Status == status {
			res = append(res, t)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res
}

// setStatus changes a task's status in memory only.
func (b *Board) setStatus(id string, status domain.TaskStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			b.tasks[i].Status = status
			return true
		}
	}
	return false
}

// applyOrders writes order and status in memory only.
func (b *Board) applyOrders(updates []domain.OrderUpdate) {
	idx := make(map[string]domain.OrderUpdate, len(updates))
	for _, u := range updates {
		idx[u.ID] = u
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		if u, ok := idx[b.tasks[i].ID]; ok {
			b.tasks[i].Order = u.Order
			b.tasks[i].Status = u.Status
		}
	}
}

// Run applies snapshots from feed until it closes or ctx ends.
func (b *Board) Run(ctx context.Context, feed <-chan []domain.Task) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tasks, ok := <-feed:
			if !ok {
				return nil
			}
			b.Replace(tasks)
		}
	}
}
