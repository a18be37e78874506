package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/steno/internal/animation"
	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/config"
	"github.com/hpungsan/steno/internal/db"
	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/logging"
	"github.com/hpungsan/steno/internal/mcp"
	"github.com/hpungsan/steno/internal/media"
	"github.com/hpungsan/steno/internal/ops"
	"github.com/hpungsan/steno/internal/render"
	"github.com/hpungsan/steno/internal/tracks"
	"github.com/hpungsan/steno/internal/web"
)

// runtime holds the lazily opened resources shared by commands.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	// engine overrides the ffmpeg engine.
	engine render.Engine

	db    *sql.DB
	store *media.Store
}

func (rt *runtime) log() *slog.Logger {
	if rt.logger == nil {
		return logging.NewNop()
	}
	return rt.logger
}

func (rt *runtime) openDB() (*sql.DB, error) {
	if rt.db != nil {
		return rt.db, nil
	}
	database, err := db.Init(rt.cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, rt.cfg)
	rt.db = database
	return database, nil
}

func (rt *runtime) openMedia() (*media.Store, error) {
	if rt.store != nil {
		return rt.store, nil
	}
	store, err := media.Init(rt.cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	rt.store = store
	return store, nil
}

func (rt *runtime) newOrchestrator(store *media.Store) *render.Orchestrator {
	engine := rt.engine
	if engine == nil {
		engine = render.NewFFmpegEngine(rt.cfg.FFmpegPath, rt.log())
	}
	return render.NewOrchestrator(nil, store, engine, render.Options{
		FPS:             rt.cfg.FPS,
		MinCRF:          rt.cfg.MinCRF,
		MaxCRF:          rt.cfg.MaxCRF,
		Threads:         rt.cfg.Workers(),
		MaxConcurrent:   rt.cfg.MaxConcurrentRenders,
		RetentionTTL:    rt.cfg.RetentionTTL.Std(),
		OutputURLPrefix: render.DefaultOptions().OutputURLPrefix,
	}, rt.log())
}

func (rt *runtime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
		rt.db = nil
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "steno",
		Usage:   "Animated caption render service",
		Version: Version,
		Writer:  rt.stdout,
		Commands: []*cli.Command{
			serveCmd(rt),
			mcpCmd(rt),
			tracksCmd(rt),
			stateCmd(rt),
			renderCmd(rt),
			videoCmd(rt),
			docCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the render job sweeper",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			if bind := c.String("bind"); bind != "" {
				rt.cfg.Bind = bind
			}
			if port := c.Int("port"); port != 0 {
				rt.cfg.Port = port
			}

			database, err := rt.openDB()
			if err != nil {
				return outputError(err)
			}
			store, err := rt.openMedia()
			if err != nil {
				return outputError(err)
			}
			if err := store.Lock(); err != nil {
				return outputError(err)
			}
			defer func() { _ = store.Unlock() }()

			orch := rt.newOrchestrator(store)
			sweepCtx, stopSweep := context.WithCancel(c.Context)
			defer stopSweep()
			go orch.RunSweeper(sweepCtx, rt.cfg.CleanupInterval.Std())

			srv := web.NewServer(web.Deps{
				DB:      database,
				Videos:  store,
				Renders: orch,
				Config:  rt.cfg,
				Logger:  rt.log(),
				Version: Version,
			})
			runErr := web.Run(c.Context, srv, rt.log())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := orch.Shutdown(shutdownCtx); err != nil {
				rt.log().Warn("render tasks did not stop in time", logging.Error(err))
			}
			if runErr != nil {
				return outputError(runErr)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP tool server on stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
				rt.log().Warn("unknown tools in disabled_tools", slog.Any("tools", unknown))
			}
			if unknown := mcp.ValidateDisabledTypes(rt.cfg.DisabledTypes); len(unknown) > 0 {
				rt.log().Warn("unknown types in disabled_types", slog.Any("types", unknown))
			}

			database, err := rt.openDB()
			if err != nil {
				return outputError(err)
			}
			store, err := rt.openMedia()
			if err != nil {
				return outputError(err)
			}
			orch := rt.newOrchestrator(store)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = orch.Shutdown(ctx)
			}()

			if err := mcp.Run(database, orch, rt.cfg, Version); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// tracksCmd creates the tracks command.
func tracksCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "tracks",
		Usage:     "Show the lane layout of a caption document file",
		ArgsUsage: "<document.json|.yaml>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "epsilon", Value: tracks.DefaultEpsilon, Usage: "Overlap tolerance in seconds"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			doc, err := loadDocumentArg(c)
			if err != nil {
				return outputError(err)
			}
			epsilon := c.Float64("epsilon")
			if epsilon < 0 {
				return outputError(errors.NewInvalidRequest("epsilon must be >= 0"))
			}
			layout := tracks.LayoutDocument(doc, epsilon)

			if c.Bool("json") {
				return outputJSON(rt.stdout, layout)
			}
			rows := make([][]string, 0, len(doc.Captions))
			for _, cp := range doc.Captions {
				rows = append(rows, []string{
					cp.ID,
					strconv.Itoa(layout.Lanes[cp.ID]),
					formatSeconds(cp.Start),
					formatSeconds(cp.End),
					truncate(cp.Text, 40),
				})
			}
			fmt.Fprintln(rt.stdout, renderTable(
				[]string{"Caption", "Lane", "Start", "End", "Text"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(rt.stdout, "%d lane(s)\n", layout.LaneCount)
			return nil
		},
	}
}

// stateCmd creates the state command.
func stateCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Show the animation state of captions at a frame",
		ArgsUsage: "<document.json|.yaml>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "frame", Aliases: []string{"f"}, Usage: "Global frame number"},
			&cli.IntFlag{Name: "fps", Usage: "Frames per second (default from config)"},
			&cli.StringFlag{Name: "caption", Aliases: []string{"c"}, Usage: "Only this caption id"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			doc, err := loadDocumentArg(c)
			if err != nil {
				return outputError(err)
			}
			frame := c.Int("frame")
			if frame < 0 {
				return outputError(errors.NewInvalidRequest("frame must be >= 0"))
			}
			fps := c.Int("fps")
			if fps == 0 {
				fps = rt.cfg.FPS
			}
			if fps <= 0 {
				return outputError(errors.NewInvalidRequest("fps must be > 0"))
			}
			captionID := c.String("caption")
			if captionID != "" {
				if _, ok := doc.Caption(captionID); !ok {
					return outputError(errors.NewNotFound("caption", captionID))
				}
			}

			frames := []animation.CaptionFrame{}
			for _, cf := range animation.Sample(doc, frame, fps) {
				if captionID == "" || cf.CaptionID == captionID {
					frames = append(frames, cf)
				}
			}

			if c.Bool("json") {
				return outputJSON(rt.stdout, frames)
			}
			rows := make([][]string, 0, len(frames))
			for _, cf := range frames {
				rows = append(rows, []string{
					cf.CaptionID,
					strconv.Itoa(cf.ElapsedFrames),
					strconv.FormatFloat(cf.State.Opacity, 'f', 2, 64),
					strconv.FormatFloat(cf.State.Scale, 'f', 2, 64),
					strconv.FormatFloat(cf.State.TranslateY, 'f', 1, 64),
					cf.State.VisibleText,
				})
			}
			fmt.Fprintln(rt.stdout, renderTable(
				[]string{"Caption", "Elapsed", "Opacity", "Scale", "TranslateY", "Visible"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

// renderCmd creates the render command.
func renderCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a video with captions locally and wait for the result",
		ArgsUsage: "<document.json|.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "video", Required: true, Usage: "Source video file or stored video id"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Copy the result to this file"},
			&cli.StringFlag{Name: "aspect-ratio", Value: render.DefaultAspectRatio, Usage: "One of " + strings.Join(render.AspectRatioNames(), ", ")},
			&cli.IntFlag{Name: "quality", Value: render.DefaultQuality, Usage: "Quality 0-100"},
		},
		Action: func(c *cli.Context) error {
			doc, err := loadDocumentArg(c)
			if err != nil {
				return outputError(err)
			}
			store, err := rt.openMedia()
			if err != nil {
				return outputError(err)
			}
			videoID, err := resolveVideo(store, c.String("video"))
			if err != nil {
				return outputError(err)
			}

			orch := rt.newOrchestrator(store)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = orch.Shutdown(ctx)
			}()

			quality := c.Int("quality")
			job, err := orch.Submit(c.Context, render.SubmitInput{
				VideoID:     videoID,
				Document:    doc,
				AspectRatio: c.String("aspect-ratio"),
				Quality:     &quality,
			})
			if err != nil {
				return outputError(err)
			}

			final, err := waitWithProgress(c.Context, rt, orch, job.JobID)
			if err != nil {
				return outputError(err)
			}
			if final.Status != render.StatusComplete {
				return outputError(errors.NewRenderFailed(fmt.Errorf("%s", final.Error)))
			}

			if out := c.String("out"); out != "" {
				if err := copyFile(final.OutputRef, out); err != nil {
					return outputError(errors.NewInternal(err))
				}
				final.OutputRef = out
			}
			return outputJSON(rt.stdout, final)
		},
	}
}

// waitWithProgress polls the job every poll interval, reporting progress on
// stderr. Interrupting the command cancels the job.
func waitWithProgress(ctx context.Context, rt *runtime, orch *render.Orchestrator, jobID string) (*render.StatusOutput, error) {
	interval := rt.cfg.PollInterval.Std()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := make(chan struct{})
	var final *render.StatusOutput
	var waitErr error
	go func() {
		defer close(done)
		final, waitErr = orch.Wait(context.Background(), jobID)
	}()

	for {
		select {
		case <-done:
			fmt.Fprintln(rt.stderr)
			return final, waitErr
		case <-ctx.Done():
			if _, err := orch.Cancel(jobID); err != nil {
				return nil, err
			}
			<-done
			fmt.Fprintln(rt.stderr)
			return nil, errors.NewCancelled()
		case <-ticker.C:
			if st, err := orch.Status(jobID); err == nil {
				fmt.Fprintf(rt.stderr, "\r%-9s %3d%%", st.Status, st.Progress)
			}
		}
	}
}

// videoCmd creates the video command group.
func videoCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "video",
		Usage: "Manage stored source videos",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Copy a video file into storage",
				ArgsUsage: "<file>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return outputError(errors.NewInvalidRequest("video file path is required"))
					}
					store, err := rt.openMedia()
					if err != nil {
						return outputError(err)
					}
					f, err := os.Open(c.Args().First())
					if err != nil {
						return outputError(errors.NewNotFound("file", c.Args().First()))
					}
					defer f.Close()
					res, err := store.Save(f, filepath.Base(f.Name()))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(rt.stdout, res)
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a stored video",
				ArgsUsage: "<video-id>",
				Action: func(c *cli.Context) error {
					store, err := rt.openMedia()
					if err != nil {
						return outputError(err)
					}
					videoID := c.Args().First()
					if err := store.Delete(videoID); err != nil {
						return outputError(err)
					}
					return outputJSON(rt.stdout, map[string]string{"status": "deleted", "videoId": videoID})
				},
			},
		},
	}
}

// docCmd creates the doc command group for stored caption documents.
func docCmd(rt *runtime) *cli.Command {
	withDB := func(fn func(c *cli.Context, database *sql.DB) (any, error)) cli.ActionFunc {
		return func(c *cli.Context) error {
			database, err := rt.openDB()
			if err != nil {
				return outputError(err)
			}
			out, err := fn(c, database)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(rt.stdout, out)
		}
	}
	exportsDir := func() string { return filepath.Join(rt.cfg.StorageDir, "exports") }

	return &cli.Command{
		Name:  "doc",
		Usage: "Manage stored caption documents",
		Subcommands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Store a caption document file for a video",
				ArgsUsage: "<video-id> <document.json|.yaml>",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "expected-revision", Value: -1, Usage: "Fail unless the stored revision matches"},
				},
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					if c.NArg() != 2 {
						return nil, errors.NewInvalidRequest("video id and document path are required")
					}
					doc, err := captions.Load(c.Args().Get(1))
					if err != nil {
						return nil, asInvalid(err)
					}
					input := ops.PutInput{VideoID: c.Args().First(), Document: doc}
					if rev := c.Int64("expected-revision"); rev >= 0 {
						input.ExpectedRevision = &rev
					}
					return ops.PutDocument(c.Context, database, input)
				}),
			},
			{
				Name:      "get",
				Usage:     "Print a stored caption document",
				ArgsUsage: "<video-id>",
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					return ops.GetDocument(c.Context, database, ops.GetInput{VideoID: c.Args().First()})
				}),
			},
			{
				Name:  "list",
				Usage: "List stored caption documents",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
					&cli.IntFlag{Name: "offset", Usage: "Skip items"},
				},
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					return ops.ListDocuments(c.Context, database, ops.ListInput{Limit: c.Int("limit"), Offset: c.Int("offset")})
				}),
			},
			{
				Name:      "rm",
				Usage:     "Delete a stored caption document",
				ArgsUsage: "<video-id>",
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					return ops.DeleteDocument(c.Context, database, ops.DeleteInput{VideoID: c.Args().First()})
				}),
			},
			{
				Name:      "stylize",
				Usage:     "Assign styles, animations and emphasis",
				ArgsUsage: "<video-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "theme", Usage: "One of " + strings.Join(captions.ThemeNames, ", ")},
					&cli.BoolFlag{Name: "vary-animations", Value: true},
					&cli.BoolFlag{Name: "emphasize-keywords", Value: true},
				},
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					vary, emphasize := c.Bool("vary-animations"), c.Bool("emphasize-keywords")
					return ops.Stylize(c.Context, database, ops.StylizeInput{
						VideoID:           c.Args().First(),
						Theme:             c.String("theme"),
						VaryAnimations:    &vary,
						EmphasizeKeywords: &emphasize,
					})
				}),
			},
			{
				Name:      "export",
				Usage:     "Write a stored document to the exports directory",
				ArgsUsage: "<video-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Target .json/.yaml file inside the exports directory"},
				},
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					return ops.Export(c.Context, database, exportsDir(), ops.ExportInput{VideoID: c.Args().First(), Path: c.String("path")})
				}),
			},
			{
				Name:      "import",
				Usage:     "Load a document from the exports directory",
				ArgsUsage: "<video-id> <path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "replace", Usage: "Overwrite an existing document"},
				},
				Action: withDB(func(c *cli.Context, database *sql.DB) (any, error) {
					return ops.Import(c.Context, database, []string{exportsDir()}, ops.ImportInput{
						VideoID: c.Args().First(),
						Path:    c.Args().Get(1),
						Replace: c.Bool("replace"),
					})
				}),
			},
		},
	}
}

// Helper functions

// loadDocumentArg loads the caption document named by the first argument.
func loadDocumentArg(c *cli.Context) (*captions.Document, error) {
	if c.NArg() < 1 {
		return nil, errors.NewInvalidRequest("caption document path is required")
	}
	doc, err := captions.Load(c.Args().First())
	if err != nil {
		return nil, asInvalid(err)
	}
	return doc, nil
}

// asInvalid keeps structured errors and reports anything else as a bad request.
func asInvalid(err error) error {
	if errors.As(err).Code != errors.ErrInternal {
		return err
	}
	return errors.NewInvalidRequest(err.Error())
}

// resolveVideo accepts a stored video id or a file path, copying files into
// storage.
func resolveVideo(store *media.Store, ref string) (string, error) {
	if _, err := store.Resolve(ref); err == nil {
		return ref, nil
	}
	f, err := os.Open(ref)
	if err != nil {
		return "", errors.NewNotFound("video", ref)
	}
	defer f.Close()
	res, err := store.Save(f, filepath.Base(ref))
	if err != nil {
		return "", err
	}
	return res.VideoID, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	sErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64) + "s"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
