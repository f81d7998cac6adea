// Command dsmanager synchronises a dataset catalog with its media directory
// and exports annotation files, media/label pairs and blob mirrors.
//
// Usage:
//
//	dsmanager [-v] [-env FILE] [-metrics-file FILE] <command> [flags]
//
// Commands: update, export-anno, export, select, set-fields, mirror.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"dsmanager/internal/blob"
	"dsmanager/internal/catalog"
	"dsmanager/internal/config"
	"dsmanager/internal/dispatch"
	"dsmanager/internal/export"
	"dsmanager/internal/export/voc"
	"dsmanager/internal/fsutil"
	"dsmanager/internal/metrics"
	"dsmanager/internal/selection"
	"dsmanager/internal/updater"
	"dsmanager/internal/workspace"
	"dsmanager/pkg/domain"

	"github.com/joho/godotenv"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

type app struct {
	cfg    config.Config
	ws     workspace.Workspace
	rec    *metrics.Recorder
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"update":      runUpdate,
	"export-anno": runExportAnno,
	"export":      runExport,
	"select":      runSelect,
	"set-fields":  runSetFields,
	"mirror":      runMirror,
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dsmanager", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "debug logging")
	envFile := fs.String("env", ".env", "dotenv file loaded before reading DSM_* settings (optional)")
	metricsFile := fs.String("metrics-file", "", "write prometheus metrics to this textfile on exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: dsmanager [flags] <update|export-anno|export|select|set-fields|mirror> [command flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("load env file", "path", *envFile, "error", err)
		return 1
	}
	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}
	ds, err := catalog.Open(ctx, cfg)
	if err != nil {
		logger.Error("open catalog", "driver", cfg.StorageDriver, "error", err)
		return 1
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			logger.Warn("close catalog", "error", cerr)
		}
	}()

	rec := metrics.NewRecorder()
	a := &app{
		cfg: cfg,
		ws: workspace.Workspace{
			Dataset:  ds,
			FS:       fsutil.OS(),
			Logger:   logger,
			Workers:  cfg.Workers,
			Observer: rec,
		},
		rec:    rec,
		stdout: stdout,
		stderr: stderr,
		logger: logger,
	}
	runErr := cmd(ctx, a, rest[1:])
	if *metricsFile != "" {
		if err := rec.WriteTextfile(*metricsFile); err != nil {
			logger.Warn("write metrics", "path", *metricsFile, "error", err)
		}
	}
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			return 2
		}
		logger.Error("command failed", "command", rest[0], "error", runErr)
		return 1
	}
	return 0
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// sessionFlag installs -select, the comma-separated sample IDs treated as the
// session selection.
func sessionFlag(fs *flag.FlagSet) *string {
	return fs.String("select", "", "comma-separated sample IDs selected in the session")
}

func (a *app) withSession(ids string) workspace.Workspace {
	ws := a.ws
	var selected []string
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, id)
		}
	}
	ws.Session = workspace.NewStaticSession(selected...)
	return ws
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("update")
	list := fs.String("list", "", "only refresh the samples listed in this file; never adds samples")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var view domain.SampleView
	if *list != "" {
		paths, err := fsutil.ReadPathList(a.ws.Files(), *list, fsutil.ImageExtensions)
		if err != nil {
			return err
		}
		view = a.ws.Dataset.SelectByPaths(paths)
	}
	st, err := updater.Update(ctx, a.ws, view)
	if err != nil {
		return err
	}
	return a.print(st)
}

func runExportAnno(ctx context.Context, a *app, args []string) error {
	fs := a.flags("export-anno")
	out := fs.String("out", "", "directory receiving <stem>.anno files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("export-anno: -out required")
	}
	report, err := export.AnnoFiles(ctx, a.ws, *out)
	if err != nil {
		return err
	}
	return a.finish(report)
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := a.flags("export")
	out := fs.String("out", "", "export directory")
	noAnno := fs.Bool("no-anno", false, "skip .anno files")
	overwrite := fs.Bool("overwrite", false, "replace existing exported files")
	labelsOnly := fs.Bool("labels-only", false, "write labels without copying media")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("export: -out required")
	}
	exporter := voc.New(a.ws.Files(), *out, voc.Options{Overwrite: *overwrite, LabelsOnly: *labelsOnly, Logger: a.logger})
	report, err := export.Samples(ctx, a.ws, export.Options{SaveDir: *out, GetAnno: !*noAnno, Exporter: exporter})
	if err != nil {
		return err
	}
	return a.finish(report)
}

func runSelect(ctx context.Context, a *app, args []string) error {
	fs := a.flags("select")
	list := fs.String("list", "", "path-list file; overrides -select")
	ids := sessionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	view, err := selection.SelectedView(ctx, a.withSession(*ids), *list)
	if err != nil || view == nil {
		return err
	}
	for _, p := range view.Paths() {
		if _, err := fmt.Fprintln(a.stdout, p); err != nil {
			return err
		}
	}
	return nil
}

func runSetFields(ctx context.Context, a *app, args []string) error {
	fs := a.flags("set-fields")
	list := fs.String("list", "", "path-list file of samples to modify")
	fieldsFile := fs.String("fields", "", "JSON object file of field values")
	inline := fs.String("json", "", "inline JSON object of field values")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *list == "" {
		return errors.New("set-fields: -list required")
	}
	var fields map[string]any
	switch {
	case *fieldsFile != "":
		f, err := selection.LoadFields(a.ws.Files(), *fieldsFile)
		if err != nil {
			return err
		}
		fields = f
	case *inline != "":
		if err := json.Unmarshal([]byte(*inline), &fields); err != nil {
			return fmt.Errorf("set-fields: -json: %w", err)
		}
	default:
		return errors.New("set-fields: -fields or -json required")
	}
	n, err := selection.AssignFields(ctx, a.ws, *list, fields)
	if err != nil {
		return err
	}
	return a.print(map[string]int{"modified": n})
}

func runMirror(ctx context.Context, a *app, args []string) error {
	fs := a.flags("mirror")
	dir := fs.String("dir", "", "directory holding exported .anno files")
	prefix := fs.String("prefix", "", "key prefix in the blob store (default: dataset name)")
	driver := fs.String("driver", a.cfg.BlobDriver, "blob driver: fs|s3|memory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("mirror: -dir required")
	}
	store, err := blob.Open(ctx, *driver, a.cfg.BlobFSRoot)
	if err != nil {
		return err
	}
	p := *prefix
	if p == "" {
		p = a.cfg.DatasetName
	}
	report, err := export.Mirror(ctx, a.ws, *dir, store, p)
	if err != nil {
		return err
	}
	return a.finish(report)
}

func (a *app) finish(report dispatch.Report) error {
	if err := a.print(map[string]any{
		"operation": report.Operation,
		"total":     report.Total,
		"succeeded": report.Succeeded(),
		"failed":    len(report.Failed()),
	}); err != nil {
		return err
	}
	return report.Err()
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
