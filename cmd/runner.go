package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for
// each command action. The engine is built lazily so commands that never
// touch the database (help, version) stay cheap.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
	input  io.Reader

	engine *Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
	Input  io.Reader
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		input:  opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, searchCommand, libraryCommand, playCommand, authCommand, metadataCommand, lyricsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// ensureEngine builds the full engine on first use and restores the
// persisted service states.
func (r *Runner) ensureEngine(ctx context.Context) (*Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	prompter := &terminalPrompter{output: r.output, input: r.input}
	flow := &terminalCodeFlow{output: r.output, input: r.input}

	engine, err := buildEngine(r.config, prompter, flow, r.logger)
	if err != nil {
		return nil, err
	}
	if err := engine.restore(ctx); err != nil {
		engine.Close()
		return nil, err
	}

	r.engine = engine
	return engine, nil
}

// Close releases the engine if one was built.
func (r *Runner) Close() {
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
