package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"okrdash/internal/audit"
	"okrdash/internal/checkin"
	"okrdash/internal/config"
	"okrdash/internal/logger"
	"okrdash/internal/notify"
	"okrdash/internal/okr"
	"okrdash/internal/okrstore"
	"okrdash/internal/records"
	"okrdash/internal/report"
	"okrdash/internal/scheduler"
	"okrdash/internal/server"
	"okrdash/internal/workspace"
)

const appName = "okrdash"

func main() {
	flag.String("workspace", "", "Path to workspace root (default: $OKRDASH_WORKSPACE or .)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: OKR progress and alignment dashboard\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init     Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  import   Load okrs/*.yml into the database")
		fmt.Fprintln(os.Stderr, "  export   Write the database back out as OKR documents")
		fmt.Fprintln(os.Stderr, "  progress Show objective progress for a cycle")
		fmt.Fprintln(os.Stderr, "  cycle    List cycles and the current cycle's time")
		fmt.Fprintln(os.Stderr, "  checkin  Record key-result check-ins")
		fmt.Fprintln(os.Stderr, "  report   Write a dashboard snapshot")
		fmt.Fprintln(os.Stderr, "  serve    Run the HTTP API and scheduler")
		fmt.Fprintln(os.Stderr, "  help     Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	commands := map[string]func([]string, string) error{
		"init":     runInit,
		"import":   runImport,
		"export":   runExport,
		"progress": runProgress,
		"cycle":    runCycle,
		"checkin":  runCheckIn,
		"report":   runReport,
		"serve":    runServe,
	}
	run, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err := run(args[1:], workspacePath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

// app is everything a command needs once the workspace is resolved.
type app struct {
	cfg      *config.Config
	ws       *workspace.Workspace
	settings okr.Settings
	store    *records.SQLiteStore
	repo     *records.OKRRepository
	audit    *audit.Logger
	log      zerolog.Logger
}

func openApp(workspacePath string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(workspacePath) == "" {
		workspacePath = cfg.Workspace
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}
	if err := ws.CheckInitialized(); err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	settings, err := config.LoadSettings(ws.SettingsPath, cfg.Timezone)
	if err != nil {
		return nil, err
	}

	dbPath, err := ws.DatabasePath(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store, err := records.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		ws:       ws,
		settings: settings,
		store:    store,
		repo:     records.NewOKRRepository(store, settings),
		audit:    audit.NewLogger(store),
		log:      log,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close database")
	}
}

// track wraps a command in <name>_started / <name>_finished audit events.
func (a *app) track(ctx context.Context, name string, payload map[string]any, fn func(finish map[string]any) error) error {
	if err := a.audit.LogEvent(ctx, "cli", name+"_started", payload); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}
	finish := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		finish[k] = v
	}
	err := fn(finish)
	if err != nil {
		finish["error"] = err.Error()
	}
	_ = a.audit.LogEvent(ctx, "cli", name+"_finished", finish)
	return err
}

func (a *app) permissions() (*okrstore.PermissionConfig, error) {
	perms, err := okrstore.LoadPermissionsForDir(a.ws.OKRsDir)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	return perms, nil
}

func (a *app) notifier() notify.Notifier {
	return notify.Multi{
		notify.LogNotifier{Log: logger.Component(a.log, "notify")},
		notify.DesktopNotifier{Enabled: a.cfg.Notify},
	}
}

// resolveCycle returns the named cycle, or the current one when id is empty.
func (a *app) resolveCycle(ctx context.Context, id string, now time.Time) (okr.Cycle, error) {
	if id != "" {
		c, err := a.repo.GetCycle(ctx, id)
		if err != nil {
			return okr.Cycle{}, fmt.Errorf("cycle %s: %w", id, err)
		}
		return c, nil
	}
	c, ok, err := a.repo.CurrentCycle(ctx, now)
	if err != nil {
		return okr.Cycle{}, err
	}
	if !ok {
		return okr.Cycle{}, fmt.Errorf("no current cycle; pass --cycle")
	}
	return c, nil
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(workspacePath) == "" {
		workspacePath = os.Getenv("OKRDASH_WORKSPACE")
	}
	if strings.TrimSpace(workspacePath) == "" {
		return fmt.Errorf("--workspace is required")
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	a, err := openApp(ws.Root)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	return a.track(ctx, "workspace_init", map[string]any{"workspace": ws.Root}, func(map[string]any) error {
		cycleID, cyclesYAML := quarterCyclesTemplate(time.Now())
		companyDoc := okrstore.DocumentFileName(okrstore.ScopeCompany, cycleID)
		files := map[string]string{
			filepath.Join(ws.OKRsDir, okrstore.CyclesFile):      cyclesYAML,
			filepath.Join(ws.OKRsDir, okrstore.OrgFile):         minimalOrgTemplate,
			filepath.Join(ws.OKRsDir, okrstore.PermissionsFile): minimalPermissionsTemplate,
			filepath.Join(ws.OKRsDir, okrstore.SettingsFile):    minimalSettingsTemplate,
			filepath.Join(ws.OKRsDir, companyDoc):               companyTemplate(cycleID),
		}
		for path, contents := range files {
			if err := writeFileIfMissing(path, contents); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stdout, "Initialized workspace: %s\n", ws.Root)
		fmt.Fprintln(os.Stdout, "Next steps:")
		fmt.Fprintf(os.Stdout, "  %s --workspace %s import --dry-run\n", appName, ws.Root)
		fmt.Fprintf(os.Stdout, "  %s --workspace %s import\n", appName, ws.Root)
		fmt.Fprintf(os.Stdout, "  %s --workspace %s progress\n", appName, ws.Root)
		return nil
	})
}

func runImport(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	okrsDir := fs.String("okrs-dir", "", "Path to OKR YAML directory (default: <workspace>/okrs)")
	dryRun := fs.Bool("dry-run", false, "Print a diff of what would change without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.ws.OKRsDir
	if *okrsDir != "" {
		if dir, err = a.ws.ResolvePath(*okrsDir); err != nil {
			return fmt.Errorf("resolve --okrs-dir: %w", err)
		}
	}

	ctx := context.Background()
	return a.track(ctx, "import", map[string]any{"okrs_dir": dir, "dry_run": *dryRun}, func(finish map[string]any) error {
		loaded, err := okrstore.LoadFromDirWithSettings(dir, a.settings)
		if err != nil {
			return err
		}

		if *dryRun {
			diff, err := okrstore.DryRun(ctx, a.repo, loaded)
			if err != nil {
				return err
			}
			if diff == "" {
				fmt.Fprintln(os.Stdout, "No changes.")
				return nil
			}
			fmt.Fprintln(os.Stdout, diff)
			return nil
		}

		res, err := okrstore.Import(ctx, a.repo, loaded)
		finish["objectives"] = res.Objectives
		finish["key_results"] = res.KeyResults
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Imported %d cycles, %d objectives, %d key results, %d employees\n",
			res.Cycles, res.Objectives, res.KeyResults, res.Employees)
		return nil
	})
}

func runExport(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	outDir := fs.String("out", "", "Output directory (default: <workspace>/okrs)")
	cycleID := fs.String("cycle", "", "Only export this cycle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.ws.OKRsDir
	if *outDir != "" {
		if dir, err = a.ws.ResolvePath(*outDir); err != nil {
			return fmt.Errorf("resolve --out: %w", err)
		}
	}

	ctx := context.Background()
	return a.track(ctx, "export", map[string]any{"out": dir, "cycle_id": *cycleID}, func(finish map[string]any) error {
		objectives, err := a.repo.ListObjectives(ctx, *cycleID)
		if err != nil {
			return err
		}
		names, err := okrstore.WriteDocuments(dir, okrstore.ExportDocuments(objectives))
		if err != nil {
			return err
		}
		finish["files"] = names
		for _, name := range names {
			fmt.Fprintln(os.Stdout, filepath.Join(dir, name))
		}
		return nil
	})
}

func runProgress(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("progress", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cycleID := fs.String("cycle", "", "Cycle id (default: current cycle)")
	asJSON := fs.Bool("json", false, "Print the dashboard as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	now := time.Now()
	cycle, err := a.resolveCycle(ctx, *cycleID, now)
	if err != nil {
		return err
	}
	objectives, err := a.repo.ListObjectives(ctx, cycle.ID)
	if err != nil {
		return err
	}
	dashboard := report.Build(objectives, cycle, a.settings, now)
	if *asJSON {
		return printJSON(dashboard)
	}

	fmt.Fprintf(os.Stdout, "%s (%s): day %d of %d, %d%% elapsed\n\n",
		cycle.Name, cycle.ID, dashboard.Cycle.Time.CompletedDays, dashboard.Cycle.Time.TotalDays, dashboard.Cycle.Time.Percentage)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECTIVE\tLEVEL\tOWNER\tPROGRESS\tLABEL\tPARENT")
	for _, row := range dashboard.Objectives {
		progress := fmt.Sprintf("%d%%", row.EffectiveProgress)
		if row.Source == okr.SourceManual {
			progress += " (manual)"
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\t%s\t%s\n", row.ID, row.Title, row.OwnerType, row.OwnerID, progress, row.Label, row.ParentID)
		for _, kr := range row.KeyResults {
			fmt.Fprintf(tw, "  %s %s\t\t%s\t%d%% (%g/%g)\t%s\t\n", kr.ID, kr.Title, kr.OwnerID, kr.Progress, kr.Current, kr.Target, kr.Status)
		}
	}
	return tw.Flush()
}

func runCycle(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("cycle", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print cycles as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	now := time.Now()
	cycles, err := a.repo.ListCycles(ctx)
	if err != nil {
		return err
	}
	current, hasCurrent, err := a.repo.CurrentCycle(ctx, now)
	if err != nil {
		return err
	}

	type cycleRow struct {
		okr.Cycle
		Current bool          `json:"current"`
		Time    okr.CycleTime `json:"time"`
	}
	rows := make([]cycleRow, 0, len(cycles))
	for _, c := range cycles {
		rows = append(rows, cycleRow{Cycle: c, Current: hasCurrent && c.ID == current.ID, Time: c.Progress(now, a.settings)})
	}
	if *asJSON {
		return printJSON(rows)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tCYCLE\tNAME\tSTART\tEND\tSTATUS\tELAPSED")
	for _, row := range rows {
		marker := ""
		if row.Current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d/%d days (%d%%)\n", marker, row.ID, row.Name,
			row.StartDate.Format("2006-01-02"), row.EndDate.Format("2006-01-02"), row.Status,
			row.Time.CompletedDays, row.Time.TotalDays, row.Time.Percentage)
	}
	return tw.Flush()
}

func runCheckIn(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("checkin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	krID := fs.String("kr", "", "Key result id")
	value := fs.Float64("value", -1, "New current value")
	actor := fs.String("actor", "", "Employee recording the check-in")
	note := fs.String("note", "", "Optional note")
	status := fs.String("status", "", "Optional explicit status (on_track, at_risk, ...)")
	file := fs.String("file", "", "Batch YAML of check-ins")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var batch []checkin.CheckIn
	switch {
	case *file != "":
		provider := &checkin.FileProvider{Path: *file, Actor: *actor}
		loaded, err := provider.Load()
		if err != nil {
			return err
		}
		batch = loaded
	case *krID != "":
		if *value < 0 {
			return fmt.Errorf("--value must be zero or more")
		}
		krStatus, err := okr.ParseKRStatus(*status)
		if err != nil {
			return err
		}
		batch = []checkin.CheckIn{{KRID: *krID, Value: *value, Actor: *actor, Note: *note, Status: krStatus}}
	default:
		return fmt.Errorf("--kr or --file is required")
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()
	perms, err := a.permissions()
	if err != nil {
		return err
	}

	svc := &checkin.Service{
		Repo:        a.repo,
		Permissions: perms,
		Notifier:    a.notifier(),
		Audit:       a.audit,
		Log:         logger.Component(a.log, "checkin"),
	}

	ctx := context.Background()
	return a.track(ctx, "checkin", map[string]any{"count": len(batch)}, func(finish map[string]any) error {
		changes, err := svc.Apply(ctx, batch)
		finish["status_changes"] = len(changes)
		for _, c := range changes {
			fmt.Fprintf(os.Stdout, "%s: %s → %s (%d%%, objective %s at %d%%)\n",
				c.KRID, c.OldStatus, c.NewStatus, c.Progress, c.ObjectiveID, c.ObjectiveProgress)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Applied %d check-ins\n", len(batch))
		return nil
	})
}

func runReport(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cycleID := fs.String("cycle", "", "Cycle id (default: current cycle)")
	out := fs.String("out", "", "Snapshot path (default: <workspace>/reports/snapshots/<cycle>/<date>.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	now := time.Now()
	return a.track(ctx, "report", map[string]any{"cycle_id": *cycleID}, func(finish map[string]any) error {
		cycle, err := a.resolveCycle(ctx, *cycleID, now)
		if err != nil {
			return err
		}
		objectives, err := a.repo.RecomputeAll(ctx, cycle.ID)
		if err != nil {
			return err
		}

		path := report.SnapshotPathForDate(a.ws.SnapshotsDir, cycle.ID, now)
		if *out != "" {
			if path, err = a.ws.ResolvePath(*out); err != nil {
				return fmt.Errorf("resolve --out: %w", err)
			}
		}
		dashboard := report.Build(objectives, cycle, a.settings, now)
		if err := report.WriteSnapshot(path, dashboard); err != nil {
			return err
		}
		finish["path"] = path
		fmt.Fprintf(os.Stdout, "Wrote %s (%d objectives, average %d%%)\n", path, len(dashboard.Objectives), dashboard.Average)
		return nil
	})
}

func runServe(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	port := fs.Int("port", 0, "HTTP port (default: $OKRDASH_PORT or 8080)")
	schedule := fs.String("schedule", "", "Recompute cron schedule (default: $OKRDASH_SCHEDULE)")
	dev := fs.Bool("dev", false, "Development mode (no response compression)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(workspacePath)
	if err != nil {
		return err
	}
	defer a.Close()
	if *port == 0 {
		*port = a.cfg.Port
	}
	if *schedule == "" {
		*schedule = a.cfg.Schedule
	}
	perms, err := a.permissions()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := report.MustNewMetrics(reg)

	svc := &checkin.Service{
		Repo:        a.repo,
		Permissions: perms,
		Notifier:    a.notifier(),
		Audit:       a.audit,
		Metrics:     metrics,
		Log:         logger.Component(a.log, "checkin"),
	}
	srv := server.New(server.Config{
		Port:        *port,
		Log:         a.log,
		Repo:        a.repo,
		CheckIns:    svc,
		Permissions: perms,
		Audit:       a.audit,
		Metrics:     metrics,
		Gatherer:    reg,
		SnapshotDir: a.ws.SnapshotsDir,
		DevMode:     *dev,
	})

	sched := scheduler.New(a.log, a.store, a.settings.Location)
	recompute := &scheduler.RecomputeJob{
		Repo:        a.repo,
		SnapshotDir: a.ws.SnapshotsDir,
		Metrics:     metrics,
		Log:         logger.Component(a.log, "recompute"),
	}
	if err := sched.AddJob(*schedule, recompute); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.track(ctx, "serve", map[string]any{"port": *port, "schedule": *schedule}, func(map[string]any) error {
		if err := sched.RunNow(ctx, recompute); err != nil {
			a.log.Warn().Err(err).Msg("initial recompute failed")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error { return sched.Run(gctx) })
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFileIfMissing(path string, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}
