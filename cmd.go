package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"deckflow/internal/app"
	"deckflow/internal/config"
	"deckflow/internal/model"
	"deckflow/internal/pipeline"
	"deckflow/internal/server"
)

const (
	exitOK       = 0
	exitFatal    = 1
	exitDegraded = 3
)

// exitError carries a process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deckflow",
		Short:         "Generate slide decks from a topic, files or a web page",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	root.AddCommand(newRunCmd(), newServeCmd())
	return root
}

func execute() int {
	err := newRootCmd().Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitFatal
}

// setup loads configuration and initialises logging.
func setup() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	closer, err := config.InitLogging(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var (
		task      string
		slides    int
		files     []string
		sourceURL string
		asJSON    bool
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and write the deck",
		Long: `Run the pipeline once and write the deck.

Exit codes:
  0  complete: every slide rendered and the PDF was written
  1  fatal: invalid request, the content provider or outline builder failed,
     or no slide could be rendered
  3  degraded: some slides are missing or the PDF export failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := setup()
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer closer.Close()

			if slides < cfg.Pipeline.MinRequest || slides > cfg.Pipeline.MaxRequest {
				return &exitError{code: exitFatal, err: fmt.Errorf("--slides must be between %d and %d", cfg.Pipeline.MinRequest, cfg.Pipeline.MaxRequest)}
			}
			if task == "" && len(files) == 0 {
				return &exitError{code: exitFatal, err: errors.New("--task or --file is required")}
			}

			ctx, cancel := signalContext()
			defer cancel()

			var progress *runProgress
			var observer pipeline.Observer
			if !quiet {
				progress = newRunProgress(os.Stderr)
				observer = progress.Observe
			}
			a, err := app.New(ctx, cfg, app.Options{Observer: observer})
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer a.Close()

			res, runErr := a.Pipeline.Run(ctx, model.Request{
				Task:       task,
				SlideCount: slides,
				Files:      files,
				SourceURL:  sourceURL,
			})
			if progress != nil {
				progress.Finish()
			}
			report(cmd.OutOrStdout(), res, asJSON)
			return &exitError{code: exitCode(res, runErr), err: runErr}
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "presentation topic or instructions")
	cmd.Flags().IntVarP(&slides, "slides", "n", 8, "target number of slides")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "source document (repeatable)")
	cmd.Flags().StringVarP(&sourceURL, "url", "u", "", "source web page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func exitCode(res *model.Result, err error) int {
	if err != nil || res == nil || res.Status == model.StatusFailed {
		return exitFatal
	}
	if res.Status == model.StatusPartial {
		return exitDegraded
	}
	return exitOK
}

func report(w io.Writer, res *model.Result, asJSON bool) {
	if res == nil {
		return
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	fmt.Fprintf(w, "run %s: %s\n", res.RunID, res.Status)
	if res.FatalStage != "" {
		fmt.Fprintf(w, "  failed in %s: %s\n", res.FatalStage, res.Error)
		return
	}
	fmt.Fprintf(w, "  slides: %v\n", res.SlideIndices())
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped: %v\n", res.Skipped)
	}
	if res.ArtifactPath != "" {
		fmt.Fprintf(w, "  artifact: %s\n", res.ArtifactPath)
	}
	if res.ExportError != "" {
		fmt.Fprintf(w, "  export failed: %s\n", res.ExportError)
	}
	if res.PublishedURL != "" {
		fmt.Fprintf(w, "  published: %s\n", res.PublishedURL)
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := setup()
			if err != nil {
				return err
			}
			defer closer.Close()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cfg.Runs.DBPath == "" {
				return errors.New("serve needs runs.db_path")
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.New(ctx, cfg, app.Options{IsolateRuns: true})
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.Pipeline, a.Runs, server.Limits{
				MinSlides:    cfg.Pipeline.MinRequest,
				MaxSlides:    cfg.Pipeline.MaxRequest,
				MaxFileBytes: cfg.Pipeline.MaxFileBytes,
			})
			logrus.WithField("addr", cfg.Server.Addr).Info("serving")
			return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
