package search

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"flowin/internal/domain"
)

// Index is the shared flat list every project subscription writes into.
// Projects come first in SetProjects order, then each project's tasks,
// most recently updated first.
type Index struct {
	mu       sync.RWMutex
	projects []domain.Project
	tasks    map[string][]domain.Task
}

func NewIndex() *Index {
	return &Index{tasks: map[string][]domain.Task{}}
}

func (ix *Index) SetProjects(projects []domain.Project) {
	cp := make([]domain.Project, len(projects))
	copy(cp, projects)
	keep := map[string]bool{}
	for _, p := range cp {
		keep[p.ID] = true
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.projects = cp
	for id := range ix.tasks {
		if !keep[id] {
			delete(ix.tasks, id)
		}
	}
}

// ReplaceProjectTasks swaps in a full task snapshot for one project.
func (ix *Index) ReplaceProjectTasks(projectID string, tasks []domain.Task) {
	cp := make([]domain.Task, len(tasks))
	copy(cp, tasks)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].UpdatedAt > cp[j].UpdatedAt })
	ix.mu.Lock()
	ix.tasks[projectID] = cp
	ix.mu.Unlock()
}

func (ix *Index) RemoveProject(projectID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.tasks, projectID)
	for i, p := range ix.projects {
		if p.ID == projectID {
			ix.projects = append(ix.projects[:i:i], ix.projects[i+1:]...)
			break
		}
	}
}

func (ix *Index) Items() []Item {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	items := make([]Item, 0, len(ix.projects))
	for _, p := range ix.projects {
		items = append(items, ProjectItem(p))
	}
	for _, p := range ix.projects {
		for _, t := range ix.tasks[p.ID] {
			items = append(items, TaskItem(t, p.Name))
		}
	}
	return items
}

// Source supplies the projects of one user, a live feed of that list and a
// live task feed per project.
type Source interface {
	Projects(ctx context.Context) ([]domain.Project, error)
	WatchProjects(ctx context.Context) (<-chan []domain.Project, error)
	WatchProjectTasks(ctx context.Context, projectID string) (<-chan []domain.Task, error)
}

// Supervisor owns one cancellable task subscription per visible project and
// forwards every snapshot into the Index.
type Supervisor struct {
	Index *Index

	src     Source
	log     *zap.Logger
	mu      sync.Mutex
	subs    map[string]context.CancelFunc
	follows []context.CancelFunc
	wg      sync.WaitGroup
}

func NewSupervisor(src Source, ix *Index, log *zap.Logger) *Supervisor {
	if ix == nil {
		ix = NewIndex()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{Index: ix, src: src, log: log, subs: map[string]context.CancelFunc{}}
}

// Sync fetches the project list and applies it.
func (s *Supervisor) Sync(ctx context.Context) error {
	projects, err := s.src.Projects(ctx)
	if err != nil {
		s.log.Warn("search project fetch failed; retry later", zap.Error(err))
		return err
	}
	return s.Apply(ctx, projects)
}

// Apply starts subscriptions for new projects and cancels those of projects
// no longer listed. Subscriptions live until ctx ends, Close, or removal.
func (s *Supervisor) Apply(ctx context.Context, projects []domain.Project) error {
	s.Index.SetProjects(projects)
	want := map[string]bool{}
	for _, p := range projects {
		want[p.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.subs {
		if !want[id] {
			cancel()
			delete(s.subs, id)
			s.Index.RemoveProject(id)
		}
	}
	var firstErr error
	for _, p := range projects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := s.subs[p.ID]; ok {
			continue
		}
		subCtx, cancel := context.WithCancel(ctx)
		feed, err := s.src.WatchProjectTasks(subCtx, p.ID)
		if err != nil {
			cancel()
			s.log.Warn("search task subscription failed", zap.String("project_id", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.subs[p.ID] = cancel
		s.wg.Add(1)
		go s.forward(p.ID, feed)
	}
	return firstErr
}

// Run applies every project list pushed on projects until it closes.
func (s *Supervisor) Run(ctx context.Context, projects <-chan []domain.Project) {
	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-projects:
			if !ok {
				return
			}
			_ = s.Apply(ctx, list)
		}
	}
}

// Follow subscribes to the project list and keeps the subscriptions in step
// with it until ctx ends or Close.
func (s *Supervisor) Follow(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	projects, err := s.src.WatchProjects(ctx)
	if err != nil {
		cancel()
		s.log.Warn("search project feed failed; index will not follow project changes", zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.follows = append(s.follows, cancel)
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx, projects)
	}()
	return nil
}

func (s *Supervisor) forward(projectID string, feed <-chan []domain.Task) {
	defer s.wg.Done()
	for tasks := range feed {
		if !s.active(projectID) {
			continue
		}
		s.Index.ReplaceProjectTasks(projectID, tasks)
	}
}

func (s *Supervisor) active(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[projectID]
	return ok
}

// Subscriptions lists the project ids with a live subscription.
func (s *Supervisor) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every subscription and waits for the forwarders to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	for _, cancel := range s.follows {
		cancel()
	}
	s.follows = nil
	for id, cancel := range s.subs {
		cancel()
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
