package commands

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kforge-dev/kforge/pkg/emit"
	"github.com/kforge-dev/kforge/pkg/engine"
	"github.com/kforge-dev/kforge/pkg/pipeline"
	"github.com/kforge-dev/kforge/pkg/resolve"
	"github.com/kforge-dev/kforge/pkg/telemetry"
)

// rebuildDebounce coalesces bursts of filesystem events (editors write
// several events per save) into one rebuild.
const rebuildDebounce = 250 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var (
		flags         runFlags
		format        string
		output        string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "watch <entry>",
		Short: "Rebuild on every script change",
		Long: `Watch the project root and rerun the full pipeline whenever a manifest
script changes.

Each rebuild is a fresh invocation: no state survives between runs. When an
output file is given, it is rewritten only on a fully valid build; a rejected
build leaves the previous output untouched.`,
		Example: `  # Watch and report
  kforge watch ./manifests/main.star

  # Watch and keep out.yaml current
  kforge watch --output out.yaml ./manifests/main.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newTelemetry()
			if err != nil {
				return err
			}

			emitFormat, err := emit.ParseFormat(format)
			if err != nil {
				return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
			}

			ctx := cmd.Context()
			p, err := newPipeline(ctx, logger, flags)
			if err != nil {
				logger.WithError(err).Error("failed to assemble pipeline")
				return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
			}

			defer shutdownTracer(ctx, p)

			if metricsListen != "" {
				if err := serveMetrics(ctx, logger, p, metricsListen); err != nil {
					return err
				}
			}

			opts, err := runOptions(args[0], flags)
			if err != nil {
				logger.WithError(err).Error("invalid invocation")
				return &ExitError{Code: 2, Outcome: pipeline.OutcomeInvalidInput}
			}

			return watchLoop(ctx, logger, p, opts, flags, emitFormat, output)
		},
	}

	cmd.Flags().StringVar(&flags.projectRoot, "project-root", "", "project root for module containment (default: entry directory)")
	cmd.Flags().BoolVar(&flags.allowOutsideRoot, "allow-outside-root", false, "permit imports that escape the project root")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", engine.DefaultTimeout, "script execution timeout")
	cmd.Flags().StringVar(&flags.policyDir, "policy-dir", "", "directory of .rego deny policies")
	cmd.Flags().BoolVar(&flags.builtinPolicies, "builtin-policies", false, "enable the bundled deny policies")
	cmd.Flags().StringVar(&flags.historyDB, "history", "", "SQLite database path for run history")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "emit pipeline trace spans to stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file rewritten on each valid build")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address for the Prometheus metrics endpoint (e.g. :9090)")

	return cmd
}

// serveMetrics enables metrics collection on the pipeline and exposes them
// over HTTP for the lifetime of the watch.
func serveMetrics(ctx context.Context, logger *telemetry.Logger, p *pipeline.Pipeline, addr string) error {
	cfg := telemetry.DefaultConfig().Metrics
	cfg.Enabled = true
	cfg.ListenAddress = addr

	metrics, err := telemetry.NewMetrics(cfg)
	if err != nil {
		return err
	}
	p.Metrics = metrics

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Infof("metrics listening on %s%s", addr, cfg.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warn("metrics server stopped")
		}
	}()
	return nil
}

func watchLoop(ctx context.Context, logger *telemetry.Logger, p *pipeline.Pipeline,
	opts pipeline.Options, flags runFlags, format emit.Format, output string) error {

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watchTree(watcher, opts.ProjectRoot); err != nil {
		return err
	}
	logger.WithEntry(opts.Entry).Infof("watching %s", opts.ProjectRoot)

	rebuild := func() {
		if p.Metrics != nil {
			p.Metrics.RunStarted("watch")
		}
		res := p.Run(ctx, opts)
		if p.Metrics != nil {
			p.Metrics.RunCompleted("watch", string(res.Outcome), res.Duration.Seconds())
		}
		recordHistory(ctx, logger, flags.historyDB, opts.Entry, res)
		if err := reportResult(logger, res); err != nil {
			return
		}
		if output == "" {
			logger.Infof("build valid: %d document(s)", len(res.Documents))
			return
		}
		docs := make([]map[string]interface{}, len(res.Documents))
		for i, d := range res.Documents {
			docs[i] = d.Value
		}
		file, err := os.Create(output)
		if err != nil {
			logger.WithError(err).Error("failed to create output file")
			return
		}
		defer file.Close()
		if err := emit.Write(file, docs, format); err != nil {
			logger.WithError(err).Error("failed to emit documents")
			return
		}
		logger.Infof("wrote %d document(s) to %s", len(docs), output)
	}

	// Initial build before the first change arrives.
	rebuild()

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name)
				}
			}
			if !strings.HasSuffix(event.Name, resolve.ScriptExt) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(rebuildDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watch error")
		}
	}
}

// watchTree adds root and every directory under it to the watcher.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
