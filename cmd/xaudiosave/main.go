package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/cli"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/config"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/logging"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/node"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/processor"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ui"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/watch"
)

var (
	version = "0.1.0"
)

const description = "Two-pass loudness mastering and collision-free WAV saving"

// CLI defines the command-line interface
type CLI struct {
	Version bool   `short:"v" help:"Show version information"`
	Config  string `short:"c" type:"path" help:"Path to TOML config file (optional)"`
	Logs    bool   `help:"Write a mastering report next to each output"`
	Plain   bool   `help:"Print one line per file instead of the interactive view"`
	Watch   string `short:"w" type:"existingdir" help:"Master audio files as they appear in this directory"`

	Target     *float64 `short:"t" group:"Mastering" help:"Target integrated loudness in LUFS (-70 saves without mastering)"`
	Peak       *float64 `short:"p" group:"Mastering" help:"True-peak ceiling in dBTP"`
	NoLimiter  bool     `group:"Mastering" help:"Disable the final limiter"`
	Limiter    string   `group:"Mastering" help:"Limiter mode: true-peak or simple"`
	Compress   bool     `group:"Mastering" help:"Enable the loudness-aware compressor"`
	NoCompress bool     `group:"Mastering" help:"Disable the compressor"`
	Mode       string   `group:"Mastering" help:"Compressor mode: fast, balanced or slow"`
	Ratio      *float64 `group:"Mastering" help:"Custom compression ratio (1-20), overrides the mode's ratio"`

	Rate      int     `short:"r" group:"Output" help:"Output sample rate in Hz"`
	Format    string  `short:"f" group:"Output" help:"Output sample format: f32, s24 or s16"`
	Output    string  `short:"o" type:"path" group:"Output" help:"Output directory"`
	Subfolder *string `group:"Output" help:"Subfolder under the output directory (supports %Y% date placeholders)"`
	Prefix    *string `group:"Output" help:"Filename prefix (supports %Y% date placeholders)"`

	Files []string `arg:"" name:"files" help:"Audio files to process" type:"existingfile" optional:""`
}

func main() {
	cliArgs := &CLI{}
	kctx := kong.Parse(cliArgs,
		kong.Name("xaudiosave"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.HelpPrinter(description,
			cli.EnvVar{Name: ffmpeg.EnvPath, Help: "Path to the ffmpeg executable"},
			cli.EnvVar{Name: config.EnvOutputDir, Help: "Output directory (read from .env too)"},
		)),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	if len(cliArgs.Files) == 0 && cliArgs.Watch == "" {
		cli.PrintError("No input files specified")
		kctx.PrintUsage(false)
		os.Exit(1)
	}

	settings, err := config.Load(cliArgs.Config)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	if err := applyFlags(settings, cliArgs); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}

	opts := logging.Options{
		File:       settings.Log.File,
		MaxSizeMB:  settings.Log.MaxSizeMB,
		MaxBackups: settings.Log.MaxBackups,
		Debug:      settings.Log.Debug,
	}
	if cliArgs.Plain {
		opts.Console = os.Stderr
	}
	logger, closeLog, err := logging.NewLogger(opts)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		settings: settings,
		logs:     cliArgs.Logs,
		logger:   logger,
		saver: &node.Saver{
			Runner: &ffmpeg.Runner{Path: settings.FFmpegPath, Logger: logger},
			Logger: logger,
		},
	}
	if _, err := a.saver.Runner.Executable(); err != nil {
		cli.PrintWarning(fmt.Sprintf("%v; files will be saved without mastering", err))
	}

	if cliArgs.Plain {
		err = a.runPlain(ctx, cliArgs.Files, cliArgs.Watch)
	} else {
		err = a.runTUI(ctx, cliArgs.Files, cliArgs.Watch)
	}
	if err != nil {
		cli.PrintError(err.Error())
		closeLog()
		os.Exit(1)
	}
}

// applyFlags overrides configured settings with whatever was given on the
// command line, then validates the result.
func applyFlags(s *config.Settings, c *CLI) error {
	m := &s.Mastering
	if c.Target != nil {
		m.TargetLUFS = *c.Target
	}
	if c.Peak != nil {
		m.PeakDB = *c.Peak
	}
	if c.NoLimiter {
		m.EnableLimiter = false
	}
	if c.Limiter != "" {
		mode, err := processor.ParseLimiterMode(c.Limiter)
		if err != nil {
			return err
		}
		m.Limiter = mode
		m.EnableLimiter = !c.NoLimiter
	}
	if c.Compress && c.NoCompress {
		return fmt.Errorf("--compress and --no-compress are mutually exclusive")
	}
	if c.Compress {
		m.EnableCompression = true
	}
	if c.NoCompress {
		m.EnableCompression = false
	}
	if c.Mode != "" {
		mode, err := processor.ParseCompressionMode(c.Mode)
		if err != nil {
			return err
		}
		m.Mode = mode
	}
	if c.Ratio != nil {
		m.UseCustomRatio = true
		m.CustomRatio = *c.Ratio
	}
	if c.Rate != 0 {
		m.SampleRate = c.Rate
	}
	if c.Format != "" {
		f, err := audio.ParseFormat(c.Format)
		if err != nil {
			return err
		}
		m.Format = f
	}
	if c.Output != "" {
		s.OutputDir = c.Output
	}
	if c.Subfolder != nil {
		s.Subfolder = *c.Subfolder
	}
	if c.Prefix != nil {
		s.Prefix = *c.Prefix
	}
	return m.Validate()
}

// app processes files one at a time with shared settings.
type app struct {
	settings *config.Settings
	logs     bool
	logger   *zap.Logger
	saver    *node.Saver
}

// outcome is the result of one file, successful or not.
type outcome struct {
	result *node.SaveResult
	err    error
}

func (o outcome) fallback() error {
	if o.result == nil || o.result.Mastering == nil || !o.result.Mastering.Fallback {
		return nil
	}
	if o.result.Mastering.Err != nil {
		return o.result.Mastering.Err
	}
	return errors.New("mastering failed")
}

func (o outcome) loudness() (in, out float64, skipped bool) {
	if o.result == nil || o.result.Mastering == nil {
		return 0, 0, true
	}
	res := o.result.Mastering
	if res.Skipped || res.Fallback {
		return res.Initial.Integrated, res.Initial.Integrated, true
	}
	return res.Initial.Integrated, res.Final.Integrated, false
}

func (a *app) process(ctx context.Context, path string, progress processor.ProgressFunc) outcome {
	start := time.Now()
	log := a.logger.With(zap.String("input", path))

	w, meta, err := audio.OpenAudioFile(ctx, path, a.saver.Runner)
	if err != nil {
		log.Error("failed to open audio", zap.Error(err))
		return outcome{err: err}
	}

	res, err := a.saver.Save(ctx, node.SaveRequest{
		Waveform:       w,
		FilenamePrefix: a.settings.Prefix,
		Subfolder:      a.settings.Subfolder,
		Config:         a.settings.Mastering,
		Output:         node.StaticOutput(a.settings.OutputDir),
		Progress:       progress,
	})
	if err != nil {
		log.Error("failed to save audio", zap.Error(err))
		return outcome{err: err}
	}

	if a.logs {
		reportPath, err := logging.GenerateReport(logging.ReportData{
			InputPath:    path,
			OutputPath:   res.Path,
			StartTime:    start,
			EndTime:      time.Now(),
			SampleRate:   meta.SampleRate,
			Channels:     meta.Channels,
			DurationSecs: meta.Duration,
			Config:       a.settings.Mastering,
			Result:       res.Mastering,
		})
		if err != nil {
			log.Warn("failed to write report", zap.Error(err))
		} else {
			log.Debug("report written", zap.String("report", reportPath))
		}
	}
	return outcome{result: res}
}

// watchPaths starts a watcher on dir when dir is set. The returned channel is
// nil otherwise, which blocks forever in a select.
func (a *app) watchPaths(ctx context.Context, dir string) (<-chan string, <-chan error) {
	if dir == "" {
		return nil, nil
	}
	outDir, _ := filepath.Abs(a.settings.OutputDir)
	w := &watch.Watcher{
		Dir:    dir,
		Logger: a.logger,
		Ignore: func(path string) bool {
			abs, err := filepath.Abs(path)
			return err == nil && outDir != "" && strings.HasPrefix(abs, outDir+string(filepath.Separator))
		},
	}
	paths := make(chan string)
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, paths) }()
	return paths, errc
}

func (a *app) runPlain(ctx context.Context, files []string, watchDir string) error {
	report := func(path string, o outcome) {
		if o.err != nil {
			cli.PrintError(fmt.Sprintf("%s: %v", path, o.err))
			return
		}
		_, out, skipped := o.loudness()
		cli.PrintSaved(path, o.result.RelativePath, out, !skipped, o.fallback())
	}

	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o := a.process(ctx, path, nil)
		if o.err != nil {
			failed++
		}
		report(path, o)
	}

	paths, errc := a.watchPaths(ctx, watchDir)
	if paths != nil {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-errc:
				return err
			case path := <-paths:
				report(path, a.process(ctx, path, nil))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(files))
	}
	return nil
}

func (a *app) runTUI(ctx context.Context, files []string, watchDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(files, watchDir != "")
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		progress := func(step, total int) {
			p.Send(ui.StepMsg{Step: step, Total: total})
		}
		run := func(i int, path string) {
			p.Send(ui.FileStartMsg{FileIndex: i, FileName: path})
			o := a.process(ctx, path, progress)
			in, out, skipped := o.loudness()
			msg := ui.FileCompleteMsg{
				FileIndex:  i,
				InputLUFS:  in,
				OutputLUFS: out,
				Skipped:    skipped,
				Fallback:   o.fallback(),
				Error:      o.err,
			}
			if o.result != nil {
				msg.RelativePath = o.result.RelativePath
			}
			p.Send(msg)
		}

		for i, path := range files {
			if ctx.Err() != nil {
				return
			}
			run(i, path)
		}

		paths, errc := a.watchPaths(ctx, watchDir)
		if paths == nil {
			p.Send(ui.AllCompleteMsg{})
			return
		}
		next := len(files)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errc:
				if err != nil {
					a.logger.Error("watcher stopped", zap.Error(err))
				}
				p.Send(ui.AllCompleteMsg{})
				return
			case path := <-paths:
				p.Send(ui.FileQueuedMsg{FileName: path})
				run(next, path)
				next++
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}
