package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/app"
	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/dispatch"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
	"stageline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Stageline CLI",
	Long: `Stageline moves creator projects through a configurable delivery pipeline.
- Workspace: the .stageline directory holding the database; the pipeline
  definition is stored in the DB and seeded from stageline.yml on first run.
- Stages: a directed graph from draft to paid; locked stages need an admin.
- WIP limits: per-stage caps enforced on admission.
- Triggers: rules that emit notification/tag/assign/re-stage intents.
- Analytics: throughput, cycle time, bottlenecks and risk over a window.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
	viper.SetEnvPrefix("STAGELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("admin", false, "act as administrator")
	rootCmd.PersistentFlags().String("webhook-url", "", "notification webhook endpoint")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("admin", rootCmd.PersistentFlags().Lookup("admin"))
	_ = viper.BindPFlag("webhook-url", rootCmd.PersistentFlags().Lookup("webhook-url"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(bulkMoveCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(filterCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDueCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, creator, due string
	var valueCents int64
	var tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project in the initial stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				opts := engine.ProjectCreateOptions{
					Title:      title,
					CreatorID:  creator,
					ValueCents: valueCents,
					Tags:       tags,
				}
				if due != "" {
					d, err := time.Parse(time.RFC3339, due)
					if err != nil {
						return fmt.Errorf("invalid --due: %w", err)
					}
					opts.DueDate = &d
				}
				p, err := a.Engine.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&creator, "creator", "", "creator identifier")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().Int64Var(&valueCents, "value-cents", 0, "monetary value in cents")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("creator")
	return cmd
}

func projectListCmd() *cobra.Command {
	var search string
	var stages, creators, risks []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects with derived risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				f := domain.FilterSet{Search: search, Stages: stages, Creators: creators}
				for _, raw := range risks {
					lvl, ok := domain.ParseRiskLevel(raw)
					if !ok {
						return fmt.Errorf("unknown risk level %q", raw)
					}
					f.RiskLevels = append(f.RiskLevels, lvl)
				}
				items, err := a.Engine.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Stage", "Risk", "Due", "Value"})
				for _, it := range items {
					due := ""
					if it.DueDate != nil {
						due = it.DueDate.Format("2006-01-02")
					}
					tw.AppendRow(table.Row{it.ID, it.Title, it.Status, it.Risk, due, formatCents(it.ValueCents)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "search in title, creator or id")
	cmd.Flags().StringArrayVar(&stages, "stage", nil, "stage filter (repeatable)")
	cmd.Flags().StringArrayVar(&creators, "creator", nil, "creator filter (repeatable)")
	cmd.Flags().StringArrayVar(&risks, "risk", nil, "risk level filter (repeatable)")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.Repo.FetchProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	return cmd
}

func projectDueCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "due <project-id> [date]",
		Short: "Set or clear a project's due date",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				var due *time.Time
				if !clear {
					if len(args) < 2 {
						return fmt.Errorf("a date is required unless --clear is given")
					}
					d, err := time.Parse(time.RFC3339, args[1])
					if err != nil {
						return fmt.Errorf("invalid date: %w", err)
					}
					due = &d
				}
				if err := a.Repo.UpdateDueDate(ctx, args[0], due, a.Engine.Now().UTC()); err != nil {
					return err
				}
				p, err := a.Repo.FetchProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the due date")
	return cmd
}

func moveCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "move <project-id> <stage>",
		Short: "Move a project to a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.ApplyTransition(ctx, engine.TransitionRequest{
					ProjectID:   args[0],
					TargetStage: args[1],
					Actor:       viper.GetString("actor-id"),
					Note:        note,
					AsAdmin:     viper.GetBool("admin"),
				})
				if err != nil {
					return err
				}
				if len(res.Intents) > 0 {
					dispatch.New(a.Engine, a.Repo, viper.GetString("webhook-url")).DispatchAll(ctx, res.Intents)
				}
				return printJSON(res.Project)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note recorded in history")
	return cmd
}

func bulkMoveCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "bulk-move <stage> <project-id>...",
		Short: "Move many projects to a stage",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.ApplyBulk(ctx, args[1:], args[0],
					viper.GetString("actor-id"), note, viper.GetBool("admin"))
				if err != nil {
					return err
				}
				if len(res.Intents) > 0 {
					dispatch.New(a.Engine, a.Repo, viper.GetString("webhook-url")).DispatchAll(ctx, res.Intents)
				}
				return printJSON(map[string]any{
					"updated_count": len(res.Updated),
					"errors":        res.Errors,
				})
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note recorded in history")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	var cursor int64
	cmd := &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show stage history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListHistory(ctx, args[0], cursor, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "From", "To", "Actor", "Note", "At"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.FromStage, e.ToStage, e.Actor, e.Note, e.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "pagination cursor (history id)")
	return cmd
}

func analyticsCmd() *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Pipeline analytics over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.GetAnalytics(ctx, window)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Count", "Avg dwell (days)", "WIP limit", "Violation"})
				for _, m := range res.Bottlenecks {
					limit := ""
					if m.WIPLimit != nil {
						limit = fmt.Sprintf("%d", *m.WIPLimit)
					}
					tw.AppendRow(table.Row{m.StageID, m.Count, fmt.Sprintf("%.1f", m.AvgDwellDays), limit, m.WIPViolation})
				}
				tw.Render()
				fmt.Println()
				rw := table.NewWriter()
				rw.SetOutputMirror(os.Stdout)
				rw.AppendHeader(table.Row{"Risk", "Count", "Value"})
				for _, r := range res.Risk {
					rw.AppendRow(table.Row{r.Level, r.Count, formatCents(r.ValueCents)})
				}
				rw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&window, "window", 30, "trailing window in days (7, 30 or 90)")
	return cmd
}

func triggerCmd() *cobra.Command {
	trg := &cobra.Command{Use: "trigger", Short: "Manage automation triggers"}
	trg.AddCommand(triggerListCmd())
	trg.AddCommand(triggerCreateCmd())
	trg.AddCommand(triggerDeleteCmd())
	trg.AddCommand(triggerToggleCmd("enable", true))
	trg.AddCommand(triggerToggleCmd("disable", false))
	return trg
}

func triggerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.FetchTriggers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func triggerCreateCmd() *cobra.Command {
	var name, trgType, stage, actionsJSON string
	var days int
	var valueCents int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				var actions []domain.Action
				if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
					return fmt.Errorf("invalid --actions: %w", err)
				}
				now := a.Engine.Now().UTC()
				t := domain.Trigger{
					ID:         uuid.NewString(),
					Name:       name,
					Enabled:    true,
					Type:       domain.TriggerType(trgType),
					Stage:      stage,
					Days:       days,
					ValueCents: valueCents,
					Actions:    actions,
					CreatedAt:  now,
					UpdatedAt:  now,
				}
				cfg, err := a.Engine.GetPipelineConfig(ctx)
				if err != nil {
					return err
				}
				if err := engine.ValidateTrigger(cfg, t); err != nil {
					return err
				}
				if err := a.Repo.InsertTrigger(ctx, t); err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "trigger name")
	cmd.Flags().StringVar(&trgType, "type", "", "stage_enter|stage_exit|overdue|due_soon|value_threshold")
	cmd.Flags().StringVar(&stage, "stage", "", "target stage for enter/exit triggers")
	cmd.Flags().IntVar(&days, "days", 0, "day threshold for due_soon")
	cmd.Flags().Int64Var(&valueCents, "value-cents", 0, "value threshold in cents")
	cmd.Flags().StringVar(&actionsJSON, "actions", "", `actions JSON, e.g. [{"kind":"add_tag","tag":"urgent"}]`)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("actions")
	return cmd
}

func triggerToggleCmd(use string, enabled bool) *cobra.Command {
	short := "Enable a trigger"
	if !enabled {
		short = "Disable a trigger"
	}
	return &cobra.Command{
		Use:   use + " <trigger-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				t, err := a.Repo.GetTrigger(ctx, args[0])
				if err != nil {
					return err
				}
				t.Enabled = enabled
				t.UpdatedAt = a.Engine.Now().UTC()
				if err := a.Repo.UpdateTrigger(ctx, t); err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func triggerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <trigger-id>",
		Short: "Delete a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteTrigger(ctx, args[0])
			})
		},
	}
}

func filterCmd() *cobra.Command {
	flt := &cobra.Command{Use: "filter", Short: "Manage saved filters"}
	flt.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListSavedFilters(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	var name, filtersJSON string
	var shared, isDefault bool
	save := &cobra.Command{
		Use:   "save",
		Short: "Save a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				var fs domain.FilterSet
				if filtersJSON != "" {
					if err := json.Unmarshal([]byte(filtersJSON), &fs); err != nil {
						return fmt.Errorf("invalid --filters: %w", err)
					}
				}
				now := a.Engine.Now().UTC()
				f := domain.SavedFilter{
					ID:        uuid.NewString(),
					Name:      name,
					Filters:   fs,
					IsDefault: isDefault,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if !shared {
					actor := viper.GetString("actor-id")
					f.OwnerID = &actor
				}
				if err := a.Repo.InsertSavedFilter(ctx, f); err != nil {
					return err
				}
				return printJSON(f)
			})
		},
	}
	save.Flags().StringVar(&name, "name", "", "filter name")
	save.Flags().StringVar(&filtersJSON, "filters", "", "filter predicates as JSON")
	save.Flags().BoolVar(&shared, "shared", false, "visible to everyone")
	save.Flags().BoolVar(&isDefault, "default", false, "use as default view")
	_ = save.MarkFlagRequired("name")
	flt.AddCommand(save)
	flt.AddCommand(&cobra.Command{
		Use:   "delete <filter-id>",
		Short: "Delete a saved filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteSavedFilter(ctx, args[0])
			})
		},
	})
	return flt
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the pipeline configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				pcfg, err := a.Engine.GetPipelineConfig(ctx)
				if err != nil {
					return err
				}
				return printJSON(pcfg)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Export the pipeline to YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				pcfg, err := a.Engine.GetPipelineConfig(ctx)
				if err != nil {
					return err
				}
				data, err := pcfg.ToYAML()
				if err != nil {
					return err
				}
				return os.WriteFile(args[0], data, 0o644)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace the pipeline from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				next, err := config.FromFile(args[0])
				if err != nil {
					return err
				}
				if _, err := a.Engine.ReplacePipelineConfig(ctx, next); err != nil {
					return err
				}
				return printJSON(next)
			})
		},
	})
	var patch string
	patchCmd := &cobra.Command{
		Use:   "patch",
		Short: "Merge-patch the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				next, err := a.Engine.UpdatePipelineConfig(ctx, []byte(patch))
				if err != nil {
					return err
				}
				return printJSON(next)
			})
		},
	}
	patchCmd.Flags().StringVar(&patch, "json", "", "merge patch as JSON")
	_ = patchCmd.MarkFlagRequired("json")
	cfg.AddCommand(patchCmd)
	return cfg
}

func sweepCmd() *cobra.Command {
	var deliver bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate time and value triggers over open projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if deliver {
					d := dispatch.New(a.Engine, a.Repo, viper.GetString("webhook-url"))
					dispatched, err := d.Sweep(ctx)
					if err != nil {
						return err
					}
					return printJSON(dispatched)
				}
				intents, err := a.Engine.RunSweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(intents)
			})
		},
	}
	cmd.Flags().BoolVar(&deliver, "deliver", false, "dispatch intents instead of printing them")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the secret once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				secret := "sl_" + uuid.NewString()
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					IsAdmin:   admin,
					CreatedAt: a.Engine.Now().UTC(),
				}
				if err := a.Repo.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSON(map[string]any{"id": k.ID, "key": secret, "is_admin": k.IsAdmin})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	key.AddCommand(create)
	key.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	key.AddCommand(&cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return key
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var sweepEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("STAGELINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("STAGELINE_JWT_SECRET is required for bearer auth")
			}
			d := dispatch.New(a.Engine, a.Repo, viper.GetString("webhook-url"))
			handler, err := server.New(server.Config{
				Engine:     a.Engine,
				Repo:       a.Repo,
				Dispatcher: d,
				BasePath:   basePath,
				Auth:       authCfg,
			})
			if err != nil {
				return err
			}
			go d.Run(cmd.Context(), sweepEvery)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Stageline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&sweepEvery, "sweep-every", time.Hour, "trigger sweep interval")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
