package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultDebounce = 300 * time.Millisecond

// Result is what one search produced.
type Result struct {
	Query       string   `json:"query"`
	Items       []Item   `json:"items"`
	Suggestions []string `json:"suggestions"`
}

type SessionOptions struct {
	Debounce       time.Duration
	MaxResults     int
	MaxSuggestions int
	// Recents, when set, records each query whose debounced search ran.
	Recents *Recents
	Log     *zap.Logger
}

// Session tracks the query box of one user. SetQuery restarts the debounce
// timer; only the last query typed within the window is searched.
type Session struct {
	ctx   context.Context
	items func() []Item
	opts  SessionOptions

	mu      sync.Mutex
	query   string
	seq     uint64
	timer   *time.Timer
	pending sync.WaitGroup
	results chan Result
}

// NewSession searches whatever items returns at fire time. ctx bounds the
// recent-search writes.
func NewSession(ctx context.Context, items func() []Item, opts SessionOptions) *Session {
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = DefaultMaxSuggestions
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Session{ctx: ctx, items: items, opts: opts, results: make(chan Result, 1)}
}

// Results delivers the latest result. A result nobody read is replaced by a newer one.
func (s *Session) Results() <-chan Result {
	return s.results
}

func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// SetQuery schedules a search for q. A blank query clears results at once.
func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	s.query = q
	s.seq++
	seq := s.seq
	s.stopTimer()
	if strings.TrimSpace(q) == "" {
		s.mu.Unlock()
		s.deliver(Result{Query: q, Items: []Item{}, Suggestions: []string{}})
		return
	}
	s.pending.Add(1)
	s.timer = time.AfterFunc(s.opts.Debounce, func() {
		defer s.pending.Done()
		s.fire(seq)
	})
	s.mu.Unlock()
}

// stopTimer cancels the scheduled search. Callers hold s.mu.
func (s *Session) stopTimer() bool {
	if s.timer == nil {
		return false
	}
	stopped := s.timer.Stop()
	if stopped {
		s.pending.Done()
	}
	s.timer = nil
	return stopped
}

func (s *Session) Clear() {
	s.SetQuery("")
}

// Close stops a pending search.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.stopTimer()
}

// Flush runs a search that is still waiting out the debounce window and
// returns its result; ok is false when none was waiting. A search already
// running is waited for and delivers on Results as usual. Flush must not
// run concurrently with SetQuery.
func (s *Session) Flush() (res Result, ok bool) {
	s.mu.Lock()
	q := s.query
	ok = s.stopTimer()
	if ok {
		s.seq++
	}
	s.mu.Unlock()
	s.pending.Wait()
	if !ok {
		return Result{}, false
	}
	return s.run(q), true
}

// Search runs q right away without touching the session query.
func (s *Session) Search(q string) Result {
	items := s.items()
	return Result{
		Query:       q,
		Items:       Filter(items, q, s.opts.MaxResults),
		Suggestions: Suggest(items, q, s.opts.MaxSuggestions),
	}
}

func (s *Session) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return
	}
	q := s.query
	s.timer = nil
	s.mu.Unlock()

	res := s.run(q)
	s.mu.Lock()
	stale := seq != s.seq
	s.mu.Unlock()
	if !stale {
		s.deliver(res)
	}
}

// run searches q and records it as a recent search.
func (s *Session) run(q string) Result {
	res := s.Search(q)
	if s.opts.Recents != nil {
		if _, err := s.opts.Recents.Add(s.ctx, q); err != nil {
			s.opts.Log.Warn("recent search not saved", zap.Error(err))
		}
	}
	return res
}

func (s *Session) deliver(res Result) {
	for {
		select {
		case s.results <- res:
			return
		default:
		}
		select {
		case <-s.results:
		default:
		}
	}
}
