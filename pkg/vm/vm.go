// Package vm provides the virtual machine that executes Befunge-93 programs.
// It implements:
// - the toroidal program grid and cursor movement
// - the value stack (empty pops yield zero)
// - table-driven instruction dispatch
// - buffered program I/O
// - a fail-fast run loop with optional timeout and step limit
package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/zurustar/funge/pkg/logger"
	"github.com/zurustar/funge/pkg/opcode"
)

// cancelCheckInterval is how many steps run between context checks.
const cancelCheckInterval = 1024

// VM holds the execution state of one program run.
// It is not safe for concurrent use; one goroutine drives it.
type VM struct {
	grid  *Grid
	stack *Stack

	// Cursor state
	pos        Position
	dir        opcode.Direction
	stringMode bool
	halted     bool
	steps      uint64

	// I/O
	in  *Input
	out *Output
	rng *rand.Rand

	// Configuration
	timeout   time.Duration
	stepLimit uint64

	running bool
	trace   bool

	log *slog.Logger
}

// Option is a functional option for configuring the VM.
type Option func(*VM)

// WithInput sets the stream read by the input instructions.
func WithInput(r io.Reader) Option {
	return func(vm *VM) {
		vm.in = NewInput(r)
	}
}

// WithOutput sets the stream written by the output instructions.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) {
		vm.out = NewOutput(w)
	}
}

// WithSeed makes the random direction instruction deterministic.
func WithSeed(seed uint64) Option {
	return func(vm *VM) {
		vm.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithTimeout bounds the wall-clock time of Run.
func WithTimeout(timeout time.Duration) Option {
	return func(vm *VM) {
		vm.timeout = timeout
	}
}

// WithStepLimit bounds the number of instructions executed, whether the
// VM is driven by Run or by Step. Zero means unlimited.
func WithStepLimit(limit uint64) Option {
	return func(vm *VM) {
		vm.stepLimit = limit
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// New creates a VM positioned at (0, 0) heading right over grid.
// The VM mutates grid when the program writes to itself.
//
// Without options the VM reads from an empty input, discards its output
// and picks random directions from an unseeded source.
func New(grid *Grid, opts ...Option) *VM {
	vm := &VM{
		grid:  grid,
		stack: NewStack(),
		pos:   Position{0, 0},
		dir:   opcode.DirRight,
		in:    NewInput(strings.NewReader("")),
		out:   NewOutput(io.Discard),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:   logger.GetLogger(),
	}

	for _, opt := range opts {
		opt(vm)
	}

	vm.trace = vm.log.Enabled(context.Background(), slog.LevelDebug)
	return vm
}

// Step executes the instruction under the cursor and moves the cursor.
// Stepping a halted VM does nothing. Once the step limit is reached every
// call fails with a STEP_LIMIT error and the VM does not move.
func (vm *VM) Step() error {
	if vm.halted {
		return nil
	}

	cell := vm.grid.Get(vm.pos.X, vm.pos.Y)
	if vm.stepLimit > 0 && vm.steps >= vm.stepLimit {
		return NewStepLimitError(vm.stepLimit).at(vm.pos, cell)
	}
	if vm.trace {
		vm.log.Debug("step",
			"step", vm.steps,
			"x", vm.pos.X,
			"y", vm.pos.Y,
			"op", string(rune(cell)),
			"dir", vm.dir.String(),
			"string_mode", vm.stringMode,
			"depth", vm.stack.Len(),
			"top", vm.stack.Peek())
	}

	if vm.stringMode {
		if cell == byte(opcode.StringMode) {
			vm.stringMode = false
		} else {
			vm.stack.Push(int32(cell))
		}
	} else {
		h := handlers[cell]
		if h == nil {
			return NewUnknownInstructionError(cell).at(vm.pos, cell)
		}
		here := vm.pos
		if err := h(vm, opcode.Op(cell)); err != nil {
			return err.at(here, cell)
		}
	}

	vm.steps++
	if !vm.halted {
		vm.pos = vm.grid.Advance(vm.pos, vm.dir)
	}
	return nil
}

// Run executes the program until it halts or fails.
// The first error ends the run and is returned; output written before the
// error is flushed.
func (vm *VM) Run(ctx context.Context) (err error) {
	if vm.running {
		return fmt.Errorf("VM is already running")
	}
	vm.running = true
	defer func() {
		vm.running = false
	}()

	if vm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, vm.timeout)
		defer cancel()
	}

	defer func() {
		if ferr := vm.out.Flush(); ferr != nil && err == nil {
			err = newWriteError(ferr)
		}
	}()

	vm.log.Info("VM started",
		"width", vm.grid.Width(),
		"height", vm.grid.Height(),
		"timeout", vm.timeout,
		"step_limit", vm.stepLimit)

	for !vm.halted {
		if vm.steps%cancelCheckInterval == 0 {
			if cerr := ctx.Err(); cerr != nil {
				return vm.stop(NewCanceledError(cerr))
			}
		}
		if serr := vm.Step(); serr != nil {
			vm.log.Error("VM stopped with error", "error", serr, "steps", vm.steps)
			return serr
		}
	}

	vm.log.Info("VM halted", "steps", vm.steps, "x", vm.pos.X, "y", vm.pos.Y)
	return nil
}

func (vm *VM) stop(err *RuntimeError) error {
	err.at(vm.pos, vm.grid.Get(vm.pos.X, vm.pos.Y))
	vm.log.Warn("VM stopped", "reason", err.Type, "steps", vm.steps)
	return err
}

// Position returns the cursor position.
func (vm *VM) Position() Position {
	return vm.pos
}

// Direction returns the cursor heading.
func (vm *VM) Direction() opcode.Direction {
	return vm.dir
}

// StringMode reports whether string mode is active.
func (vm *VM) StringMode() bool {
	return vm.stringMode
}

// Halted reports whether the program executed its end instruction.
func (vm *VM) Halted() bool {
	return vm.halted
}

// Stack returns a copy of the stack, bottom first.
func (vm *VM) Stack() []int32 {
	return vm.stack.Values()
}

// Grid returns the program grid.
func (vm *VM) Grid() *Grid {
	return vm.grid
}

// Steps returns the number of instructions executed.
func (vm *VM) Steps() uint64 {
	return vm.steps
}

// PendingRead reports whether the next step reads input the VM has not
// buffered yet, and whether that read is a number. Callers that must not
// block (the tracer window) check this before calling Step.
func (vm *VM) PendingRead() (waiting, number bool) {
	if vm.halted || vm.stringMode {
		return false, false
	}
	switch opcode.Op(vm.grid.Get(vm.pos.X, vm.pos.Y)) {
	case opcode.InInt:
		return !vm.in.Pending(true), true
	case opcode.InChar:
		return !vm.in.Pending(false), false
	}
	return false, false
}

// Flush writes buffered program output. Run flushes on exit; callers that
// drive the VM with Step call this themselves.
func (vm *VM) Flush() error {
	return vm.out.Flush()
}
