package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"flowin/internal/app"
	"flowin/internal/board"
	"flowin/internal/domain"
	"flowin/internal/logging"
	"flowin/internal/search"
	flowinsdk "flowin/sdk/go"
)

// backend is what the board and search commands need. The local engine
// (through an Actor) and the HTTP client both provide it.
type backend interface {
	board.Persister
	search.Source
}

func newClient() *flowinsdk.Client {
	c := flowinsdk.New(viper.GetString("server"))
	c.BearerToken = viper.GetString("token")
	c.APIKey = viper.GetString("api-key")
	return c
}

// remoteClient is newClient with feed errors logged.
func remoteClient() (*flowinsdk.Client, *zap.Logger, error) {
	log, err := logging.New("warn", false)
	if err != nil {
		return nil, nil, err
	}
	c := newClient()
	c.OnStreamError = func(endpoint string, err error) {
		log.Warn("feed stream ended", zap.String("endpoint", endpoint), zap.Error(err))
	}
	return c, log, nil
}

func withBackend(ctx context.Context, fn func(context.Context, backend, *zap.Logger) error) error {
	if viper.GetString("server") != "" {
		c, log, err := remoteClient()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return fn(ctx, c, log)
	}
	return withUser(ctx, func(ctx context.Context, w *app.Workspace, u domain.User) error {
		return fn(ctx, w.Engine.As(u.ID), w.Log)
	})
}

// loadBoard subscribes to a project's task feed and waits for the first
// snapshot. The feed keeps running until ctx is done.
func loadBoard(ctx context.Context, be backend, projectID string) (*board.Board, <-chan []domain.Task, error) {
	feed, err := be.WatchProjectTasks(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	b := board.New(projectID)
	select {
	case tasks, ok := <-feed:
		if !ok {
			return nil, nil, errors.New("task feed closed before the first snapshot")
		}
		b.Replace(tasks)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return b, feed, nil
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "board", Short: "Kanban view of a project"}
	var watch bool
	show := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Print the three columns; --watch redraws on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, be backend, log *zap.Logger) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				b, feed, err := loadBoard(ctx, be, args[0])
				if err != nil {
					return err
				}
				renderBoard(b)
				if !watch {
					return nil
				}
				for tasks := range feed {
					b.Replace(tasks)
					renderBoard(b)
				}
				return nil
			})
		},
	}
	show.Flags().BoolVar(&watch, "watch", false, "keep streaming snapshots")
	cmd.AddCommand(show)
	return cmd
}

func renderBoard(b *board.Board) {
	cols := b.Columns()
	if viper.GetBool("json") {
		_ = printJSON(cols)
		return
	}
	header := table.Row{}
	rows := 0
	for _, c := range cols {
		header = append(header, fmt.Sprintf("%s (%d)", c.Title, len(c.Tasks)))
		if len(c.Tasks) > rows {
			rows = len(c.Tasks)
		}
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	for i := 0; i < rows; i++ {
		row := table.Row{}
		for _, c := range cols {
			cell := ""
			if i < len(c.Tasks) {
				t := c.Tasks[i]
				cell = fmt.Sprintf("%s [%s]", t.Title, t.Priority)
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func taskMoveCmd() *cobra.Command {
	var to, over string
	cmd := &cobra.Command{
		Use:   "move <project-id> <task-id>",
		Short: "Drag a task onto a column (--to) or onto another task (--over)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (to == "") == (over == "") {
				return fmt.Errorf("exactly one of --to or --over is required")
			}
			return withBackend(cmd.Context(), func(ctx context.Context, be backend, log *zap.Logger) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				b, _, err := loadBoard(ctx, be, args[0])
				if err != nil {
					return err
				}
				rec := board.NewReconciler(b, be, log)
				if err := rec.Start(args[1]); err != nil {
					return err
				}
				target := board.ColumnTarget(domain.TaskStatus(to))
				if over != "" {
					target = board.TaskTarget(over)
				}
				rec.Over(target)
				m, err := rec.Drop(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				switch m.Kind {
				case board.MutationStatus:
					fmt.Printf("moved %s to %s\n", m.TaskID, m.Status.Title())
				case board.MutationReorder:
					fmt.Printf("reordered %d tasks in %s\n", len(m.Orders), m.Status.Title())
				default:
					fmt.Println("nothing to do")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target column: todo|in-progress|done")
	cmd.Flags().StringVar(&over, "over", "", "drop onto this task id")
	return cmd
}

func searchCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search project and task titles, descriptions, labels and more",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runInteractiveSearch(cmd.Context())
			}
			if len(args) == 0 {
				return fmt.Errorf("query required (or use --interactive)")
			}
			var res search.Result
			if viper.GetString("server") != "" {
				var err error
				if res, err = newClient().Search(cmd.Context(), args[0]); err != nil {
					return err
				}
			} else {
				err := withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
					var err error
					res, err = w.Engine.Search(ctx, u.ID, args[0])
					return err
				})
				if err != nil {
					return err
				}
			}
			printSearchResult(res)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read queries from stdin, one per line")
	cmd.AddCommand(&cobra.Command{
		Use:   "recent",
		Short: "Recent queries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("server") != "" {
				items, err := newClient().RecentSearches(cmd.Context())
				if err != nil {
					return err
				}
				return printLines(items)
			}
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				items, err := w.Engine.RecentSearches(ctx, u.ID)
				if err != nil {
					return err
				}
				return printLines(items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear-recent",
		Short: "Forget recent queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("server") != "" {
				return newClient().ClearRecentSearches(cmd.Context())
			}
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				return w.Engine.ClearRecentSearches(ctx, u.ID)
			})
		},
	})
	return cmd
}

// runInteractiveSearch keeps a live index of every visible project and
// searches it as lines arrive on stdin. Typing faster than the debounce
// window only searches the last line; the line pending at EOF is searched
// before exit.
func runInteractiveSearch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func(be backend, opts search.SessionOptions) error {
		sup := search.NewSupervisor(be, nil, opts.Log)
		defer sup.Close()
		if err := sup.Sync(ctx); err != nil {
			return err
		}
		// without the project feed the index still serves the projects synced above
		_ = sup.Follow(ctx)
		sess := search.NewSession(ctx, sup.Index.Items, opts)
		defer sess.Close()

		printCtx, stopPrinting := context.WithCancel(ctx)
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for {
				select {
				case <-printCtx.Done():
					return
				case res := <-sess.Results():
					printNonBlank(res)
				}
			}
		}()
		fmt.Fprintf(os.Stderr, "indexed %d projects; type a query, Ctrl-D to quit\n", len(sup.Subscriptions()))
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			sess.SetQuery(scanner.Text())
		}
		stopPrinting()
		<-printed
		res, pending := sess.Flush()
		select {
		case delivered := <-sess.Results():
			printNonBlank(delivered)
		default:
		}
		if pending {
			printNonBlank(res)
		}
		return scanner.Err()
	}

	if viper.GetString("server") != "" {
		c, log, err := remoteClient()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return run(c, search.SessionOptions{Debounce: search.DefaultDebounce, Log: log})
	}
	return withUser(ctx, func(ctx context.Context, w *app.Workspace, u domain.User) error {
		recents := search.NewRecents(w.Engine.Prefs, u.ID, w.Config.Search.RecentLimit)
		if _, err := recents.Load(ctx); err != nil {
			w.Log.Warn("recent searches unreadable; starting over", zap.Error(err))
		}
		return run(w.Engine.As(u.ID), search.SessionOptions{
			Debounce:       w.Config.Search.Debounce,
			MaxResults:     w.Config.Search.MaxResults,
			MaxSuggestions: w.Config.Search.MaxSuggestions,
			Recents:        recents,
			Log:            w.Log,
		})
	})
}

func printNonBlank(res search.Result) {
	if strings.TrimSpace(res.Query) != "" {
		printSearchResult(res)
	}
}

func printSearchResult(res search.Result) {
	if viper.GetBool("json") {
		_ = printJSON(res)
		return
	}
	tw := newTable("Type", "Title", "Project", "Status", "Priority", "Labels")
	for _, it := range res.Items {
		tw.AppendRow(table.Row{it.Kind, it.Title, it.ProjectName, it.Status, it.Priority, strings.Join(it.Labels, ",")})
	}
	tw.SetTitle(fmt.Sprintf("%q: %d results", res.Query, len(res.Items)))
	tw.Render()
	if len(res.Suggestions) > 0 {
		fmt.Println("suggestions:", strings.Join(res.Suggestions, ", "))
	}
}

func printLines(items []string) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	for _, it := range items {
		fmt.Println(it)
	}
	return nil
}
