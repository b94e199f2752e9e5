// Package tui runs the interactive view as a bubbletea program.
package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"gitlab.bluewillows.net/root/zonedeck/internal/view"
)

// ErrNotTerminal is returned when the input is not an interactive terminal.
var ErrNotTerminal = errors.New("interactive mode needs a terminal")

// Option is a functional option for configuring a Program.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	headless bool
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIO sets the terminal streams. The default is stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.in, o.out = in, out
	}
}

// Program is the interactive view of one session.
type Program struct {
	prog   *tea.Program
	model  *Model
	cancel context.CancelFunc
	opts   options
}

// New prepares a program over b. Nothing is drawn until Run.
func New(ctx context.Context, b view.Backend, opts ...Option) *Program {
	o := options{logger: slog.Default(), in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	model := newModel(ctx, view.NewMachine(b, view.WithLogger(o.logger)), o.logger)

	teaOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(o.out)}
	if o.headless {
		teaOpts = append(teaOpts, tea.WithInput(nil), tea.WithoutRenderer())
	} else {
		teaOpts = append(teaOpts, tea.WithInput(o.in), tea.WithAltScreen())
	}
	return &Program{
		prog:   tea.NewProgram(model, teaOpts...),
		model:  model,
		cancel: cancel,
		opts:   o,
	}
}

// Send delivers an event from outside the program, such as a background
// refresh. It returns without effect once the program has ended.
func (p *Program) Send(ev view.Event) {
	p.prog.Send(ev)
}

// Run shows the view until the user quits or the context ends. The
// terminal is restored before Run returns.
func (p *Program) Run() error {
	defer p.cancel()
	if !p.opts.headless {
		if err := CheckTerminal(p.opts.in); err != nil {
			return err
		}
	}

	p.opts.logger.Info("interactive session started")
	_, err := p.prog.Run()
	p.cancel()
	p.model.machine.Close()
	p.opts.logger.Info("interactive session ended")
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// CheckTerminal returns ErrNotTerminal unless in is an interactive terminal.
func CheckTerminal(in io.Reader) error {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return ErrNotTerminal
	}
	return nil
}
