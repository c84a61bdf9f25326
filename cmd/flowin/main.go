package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"flowin/internal/app"
	"flowin/internal/config"
	"flowin/internal/db"
	"flowin/internal/domain"
	"flowin/internal/engine"
	"flowin/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "flowin",
	Short: "Flowin CLI",
	Long: `Flowin is a team task board: projects hold tasks that move across three columns.
Core concepts:
- Workspace: a directory with .flowin/flowin.db and an optional flowin.yml.
- Project: a board owned by one user and shared with its members.
- Task: a card in To Do, In Progress or Done; order is dense within a column.
- Live feed: every change pushes fresh snapshots to open boards and search indexes.
- Notifications: assignment, completion and deadline messages per user.
- Event log: diary of changes, view with 'flowin log tail'.
Local commands act as --user (an email creates a local account on first use).
With --server they talk to a running 'flowin serve' instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("server") != "" {
			return nil
		}
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLOWIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", app.DefaultLocalUser, "acting user (email or id)")
	rootCmd.PersistentFlags().String("server", "", "API base URL; talk to a server instead of the workspace")
	rootCmd.PersistentFlags().String("token", "", "bearer token for --server")
	rootCmd.PersistentFlags().String("api-key", "", "API key for --server")
	for _, name := range []string{"workspace", "json", "user", "server", "token", "api-key"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage flowin.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default flowin.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate flowin.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w, err := app.Open(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer w.Close()
			cfg := w.Config
			e := w.Engine
			if secret := viper.GetString("jwt-secret"); secret != "" {
				e.Auth.Secret = secret
			}
			if e.Auth.Secret == "" {
				return fmt.Errorf("auth.jwt_secret or FLOWIN_JWT_SECRET is required for bearer auth")
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{AllowDevHeader: cfg.Auth.AllowDevHeader},
				Logger:   w.Log,
			})
			if err != nil {
				return err
			}
			webhooksDone := server.StartWebhookDispatcher(ctx, e, w.Log)
			if cfg.Reminders.Enabled {
				go e.RunDeadlineReminders(ctx, cfg.Reminders.Interval, cfg.Reminders.Window)
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			w.Log.Info("serving Flowin API",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath),
				zap.String("feed", cfg.Feed.Backend),
				zap.String("prefs", cfg.Prefs.Backend),
			)
			fmt.Printf("Serving Flowin API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-webhooksDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "token signing secret")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage accounts"}

	var email, password, name string
	signup := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and print a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sess, err := e.Auth.SignUp(ctx, email, password, name)
				if err != nil {
					return err
				}
				return printJSON(sess)
			})
		},
	}
	signup.Flags().StringVar(&email, "email", "", "email")
	signup.Flags().StringVar(&password, "password", "", "password (min 6 characters)")
	signup.Flags().StringVar(&name, "name", "", "display name")
	_ = signup.MarkFlagRequired("email")
	_ = signup.MarkFlagRequired("password")

	var loginEmail, loginPassword string
	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sess, err := e.Auth.SignIn(ctx, loginEmail, loginPassword)
				if err != nil {
					return err
				}
				return printJSON(sess)
			})
		},
	}
	login.Flags().StringVar(&loginEmail, "email", "", "email")
	login.Flags().StringVar(&loginPassword, "password", "", "password")

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				return printJSON(u)
			})
		},
	}

	var keyName string
	apiKey := &cobra.Command{
		Use:   "api-key",
		Short: "Create an API key for the acting user; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				key, plain, err := w.Engine.Auth.CreateAPIKey(ctx, u.ID, keyName)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": plain, "created_at": key.CreatedAt})
			})
		},
	}
	apiKey.Flags().StringVar(&keyName, "name", "", "key name")

	cmd.AddCommand(signup, login, whoami, apiKey)
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectMembersCmd())
	prj.AddCommand(projectStatsCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects of the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				items, err := w.Engine.ListUserProjects(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Members", "Tasks", "Done %", "Updated")
				for _, p := range items {
					stats, err := w.Engine.ProjectStats(ctx, p.ID, u.ID)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{p.ID, p.Name, len(p.Members), stats.Total, stats.CompletionRate, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				p, err := w.Engine.CreateProject(ctx, args[0], desc, u.ID)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				p, err := w.Engine.GetProject(ctx, args[0], u.ID)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or describe a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				opts := engine.ProjectUpdateOptions{ID: args[0], ActorID: u.ID}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				p, err := w.Engine.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its tasks (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				if err := w.Engine.DeleteProject(ctx, args[0], u.ID); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func projectMembersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "members", Short: "Manage project members"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <project-id> <email-or-user-id>",
		Short: "Add a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				member, err := app.ResolveUser(ctx, w.Engine, args[1])
				if err != nil {
					return err
				}
				p, err := w.Engine.AddProjectMember(ctx, args[0], member.ID, u.ID)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	})
	return cmd
}

func projectStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Task counts per column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				stats, err := w.Engine.ProjectStats(ctx, args[0], u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := newTable("To Do", "In Progress", "Done", "Total", "Done %")
				tw.AppendRow(table.Row{stats.Todo, stats.InProgress, stats.Done, stats.Total, stats.CompletionRate})
				tw.Render()
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskMoveCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, desc, priority, assignee, due string
	var labels []string
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task in the To Do column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				assigneeID := ""
				if assignee != "" {
					a, err := app.ResolveUser(ctx, w.Engine, assignee)
					if err != nil {
						return err
					}
					assigneeID = a.ID
				}
				t, err := w.Engine.CreateTask(ctx, engine.TaskCreateOptions{
					ProjectID:   args[0],
					Title:       title,
					Description: desc,
					Priority:    domain.Priority(priority),
					AssigneeID:  assigneeID,
					DueDate:     due,
					Labels:      labels,
					ActorID:     u.ID,
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|urgent")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee email or id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "label (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List tasks in feed order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				tasks, err := w.Engine.ListProjectTasks(ctx, args[0], u.ID)
				if err != nil {
					return err
				}
				if status != "" {
					filtered := tasks[:0]
					for _, t := range tasks {
						if string(t.Status) == status {
							filtered = append(filtered, t)
						}
					}
					tasks = filtered
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable("ID", "Title", "Status", "Order", "Priority", "Assignee", "Due", "Labels")
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Order, t.Priority, deref(t.AssigneeID), deref(t.DueDate), strings.Join(t.Labels, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, status, priority, assignee, due string
	var labels []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				opts := engine.TaskUpdateOptions{ID: args[0], ActorID: u.ID}
				flags := cmd.Flags()
				if flags.Changed("title") {
					opts.Title = &title
				}
				if flags.Changed("description") {
					opts.Description = &desc
				}
				if flags.Changed("status") {
					s := domain.TaskStatus(status)
					opts.Status = &s
				}
				if flags.Changed("priority") {
					p := domain.Priority(priority)
					opts.Priority = &p
				}
				if flags.Changed("assignee") {
					id := ""
					if assignee != "" {
						a, err := app.ResolveUser(ctx, w.Engine, assignee)
						if err != nil {
							return err
						}
						id = a.ID
					}
					opts.AssigneeID = &id
				}
				if flags.Changed("due") {
					opts.DueDate = &due
				}
				if flags.Changed("label") {
					opts.Labels = &labels
				}
				t, err := w.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "todo|in-progress|done")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|urgent")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee email or id (empty clears)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD, empty clears)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "replace labels (repeatable)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				if err := w.Engine.DeleteTask(ctx, args[0], u.ID); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notify", Short: "Read and send notifications"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				sum, err := w.Engine.ListNotifications(ctx, u.ID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				tw := newTable("ID", "Type", "Priority", "Title", "Read", "Created")
				for _, n := range sum.Items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Priority, n.Title, n.Read, n.CreatedAt})
				}
				tw.AppendFooter(table.Row{"", "", "", "unread", sum.UnreadCount, ""})
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "max notifications")

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				return w.Engine.MarkNotificationRead(ctx, u.ID, args[0])
			})
		},
	}

	bulk := func(use, short string, fn func(engine.Engine) func(context.Context, string) (int64, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
					n, err := fn(w.Engine)(ctx, u.ID)
					if err != nil {
						return err
					}
					fmt.Printf("%d updated\n", n)
					return nil
				})
			},
		}
	}

	var to, kind, title, message, priority string
	send := &cobra.Command{
		Use:   "send",
		Short: "Send a notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				target := u
				if to != "" {
					var err error
					if target, err = app.ResolveUser(ctx, w.Engine, to); err != nil {
						return err
					}
				}
				n, err := w.Engine.CreateNotification(ctx, domain.Notification{
					UserID:   target.ID,
					Type:     domain.NotificationType(kind),
					Title:    title,
					Message:  message,
					Priority: domain.NotificationPriority(priority),
					FromUser: u.ID,
				})
				if err != nil {
					return err
				}
				return printJSON(n)
			})
		},
	}
	send.Flags().StringVar(&to, "to", "", "recipient email or id (default: acting user)")
	send.Flags().StringVar(&kind, "type", string(domain.NotificationTeamUpdate), "notification type")
	send.Flags().StringVar(&title, "title", "", "title")
	send.Flags().StringVar(&message, "message", "", "message")
	send.Flags().StringVar(&priority, "priority", "", "low|medium|high")
	_ = send.MarkFlagRequired("title")

	cmd.AddCommand(list, read, send,
		bulk("read-all", "Mark every notification read", func(e engine.Engine) func(context.Context, string) (int64, error) {
			return e.MarkAllNotificationsRead
		}),
		bulk("clear", "Clear all notifications", func(e engine.Engine) func(context.Context, string) (int64, error) {
			return e.ClearNotifications
		}),
	)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail <project-id>",
		Short: "Tail events of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, w *app.Workspace, u domain.User) error {
				if _, err := w.Engine.GetProject(ctx, args[0], u.ID); err != nil {
					return err
				}
				events, err := w.Engine.Repo.LatestEventsFrom(ctx, n, 0, args[0], evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor", "Payload")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	w, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer w.Close()
	return fn(ctx, w.Engine)
}

// withUser opens the workspace and resolves the acting user.
func withUser(ctx context.Context, fn func(context.Context, *app.Workspace, domain.User) error) error {
	w, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer w.Close()
	u, err := app.ResolveUser(ctx, w.Engine, viper.GetString("user"))
	if err != nil {
		return err
	}
	return fn(ctx, w, u)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
