package vm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/zurustar/funge/pkg/opcode"
)

// newTestVM loads src onto a default-size grid.
func newTestVM(t *testing.T, src string, opts ...Option) *VM {
	t.Helper()
	grid, err := LoadGrid(strings.Split(src, "\n"), DefaultWidth, DefaultHeight)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	return New(grid, opts...)
}

// runProgram runs src to completion and returns its output.
func runProgram(t *testing.T, src, input string, opts ...Option) (string, *VM, error) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithInput(strings.NewReader(input)), WithOutput(&out), WithSeed(1)}, opts...)
	vm := newTestVM(t, src, opts...)
	err := vm.Run(context.Background())
	return out.String(), vm, err
}

func TestNewVM(t *testing.T) {
	t.Run("initial state", func(t *testing.T) {
		vm := newTestVM(t, "@")
		if vm.Position() != (Position{0, 0}) {
			t.Errorf("expected cursor at (0, 0), got %v", vm.Position())
		}
		if vm.Direction() != opcode.DirRight {
			t.Errorf("expected direction right, got %v", vm.Direction())
		}
		if vm.StringMode() || vm.Halted() {
			t.Error("expected string mode and halted to be false")
		}
		if len(vm.Stack()) != 0 {
			t.Error("expected empty stack")
		}
	})

	t.Run("applies timeout option", func(t *testing.T) {
		vm := newTestVM(t, "@", WithTimeout(5*time.Second))
		if vm.timeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", vm.timeout)
		}
	})

	t.Run("applies step limit option", func(t *testing.T) {
		vm := newTestVM(t, "@", WithStepLimit(10))
		if vm.stepLimit != 10 {
			t.Errorf("expected step limit 10, got %d", vm.stepLimit)
		}
	})
}

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		input string
		want  string
	}{
		{"add", "55+.@", "", "10 "},
		{"subtract operand order", "52-.@", "", "3 "},
		{"multiply", "67*.@", "", "42 "},
		{"divide operand order", "93/.@", "", "3 "},
		{"modulo operand order", "73%.@", "", "1 "},
		{"negative result", "25-.@", "", "-3 "},
		{"output char", "\"A\",@", "", "A"},
		{"hello world", "\"!dlroW ,olleH\">:#,_@", "", "Hello, World!"},
		{"countdown", "9>:.1-:v\n ^     _@", "", "9 8 7 6 5 4 3 2 1 "},
		{"read two ints", "&&+.@", "12 30\n", "42 "},
		{"read negative int", "&.@", "  -7\n", "-7 "},
		{"read chars", "~,~,@", "hi", "hi"},
		{"int then char skips newline", "&.~,@", "5\nx", "5 x"},
		{"self modification", "67*33p33g.@", "", "42 "},
		{"put then execute", "\"@\"30p5.", "", "5 "},
		{"vertical flow", "v\n5\n.\n@", "", "5 "},
		{"wrap left edge", "<@.7", "", "7 "},
		{"empty pop prints zero", ".@", "", "0 "},
		{"bridge skips a cell", "1#.2..@", "", "2 1 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, vm, err := runProgram(t, tt.src, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
			if !vm.Halted() {
				t.Error("expected VM to be halted")
			}
		})
	}
}

func TestStringMode(t *testing.T) {
	t.Run("pushes codes in order", func(t *testing.T) {
		_, vm, err := runProgram(t, "\"abc\"@", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []int32{'a', 'b', 'c'}
		got := vm.Stack()
		if len(got) != len(want) {
			t.Fatalf("stack = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("stack[%d] = %d, want %d", i, got[i], want[i])
			}
		}
	})

	t.Run("instructions are not executed inside", func(t *testing.T) {
		_, vm, err := runProgram(t, "\"a @x\"@", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := vm.Stack()
		want := []int32{'a', ' ', '@', 'x'}
		if len(got) != len(want) {
			t.Fatalf("stack = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("stack[%d] = %d, want %d", i, got[i], want[i])
			}
		}
	})

	t.Run("toggle state", func(t *testing.T) {
		vm := newTestVM(t, "\"a\"@")
		if err := vm.Step(); err != nil {
			t.Fatal(err)
		}
		if !vm.StringMode() {
			t.Error("expected string mode after opening quote")
		}
		_ = vm.Step()
		_ = vm.Step()
		if vm.StringMode() {
			t.Error("expected string mode off after closing quote")
		}
	})
}

func TestSelfModification(t *testing.T) {
	_, vm, err := runProgram(t, "67*33p33g@", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vm.Grid().Get(3, 3); got != 42 {
		t.Errorf("grid (3, 3) = %d, want 42", got)
	}
	stack := vm.Stack()
	if len(stack) != 1 || stack[0] != 42 {
		t.Errorf("stack = %v, want [42]", stack)
	}
}

func TestGetOutsideGridWraps(t *testing.T) {
	// (80, 25) wraps to (0, 0), which holds the g itself.
	vm := newTestVM(t, "g@")
	vm.stack.Push(80)
	vm.stack.Push(25)
	if err := vm.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vm.Stack(); len(got) != 1 || got[0] != 'g' {
		t.Errorf("stack = %v, want [%d]", got, 'g')
	}
}

func TestHalt(t *testing.T) {
	out, vm, err := runProgram(t, "@5.", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("expected no output after halt, got %q", out)
	}
	if vm.Steps() != 1 {
		t.Errorf("expected 1 step, got %d", vm.Steps())
	}
	if vm.Position() != (Position{0, 0}) {
		t.Errorf("cursor should stay on the end cell, got %v", vm.Position())
	}

	// Stepping after the halt does nothing.
	if err := vm.Step(); err != nil {
		t.Fatal(err)
	}
	if vm.Steps() != 1 || len(vm.Stack()) != 0 {
		t.Error("no instruction may run after halting")
	}
}

func TestDirectionAtBoundary(t *testing.T) {
	t.Run("left from x=0", func(t *testing.T) {
		vm := newTestVM(t, "<")
		if err := vm.Step(); err != nil {
			t.Fatal(err)
		}
		if vm.Position() != (Position{DefaultWidth - 1, 0}) {
			t.Errorf("expected (79, 0), got %v", vm.Position())
		}
	})

	t.Run("up from y=0", func(t *testing.T) {
		vm := newTestVM(t, "^")
		if err := vm.Step(); err != nil {
			t.Fatal(err)
		}
		if vm.Position() != (Position{0, DefaultHeight - 1}) {
			t.Errorf("expected (0, 24), got %v", vm.Position())
		}
	})

	t.Run("small grid", func(t *testing.T) {
		grid, err := LoadGrid([]string{"v", ""}, 3, 2)
		if err != nil {
			t.Fatal(err)
		}
		vm := New(grid)
		_ = vm.Step()
		_ = vm.Step()
		if vm.Position() != (Position{0, 0}) {
			t.Errorf("expected wrap to (0, 0), got %v", vm.Position())
		}
	})
}

func TestConditionals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want opcode.Direction
	}{
		{"horizontal zero goes right", "0_", opcode.DirRight},
		{"horizontal nonzero goes left", "1_", opcode.DirLeft},
		{"horizontal empty goes right", "_", opcode.DirRight},
		{"vertical zero goes down", "0|", opcode.DirDown},
		{"vertical nonzero goes up", "7|", opcode.DirUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, tt.src)
			for range len(tt.src) {
				if err := vm.Step(); err != nil {
					t.Fatal(err)
				}
			}
			if vm.Direction() != tt.want {
				t.Errorf("direction = %v, want %v", vm.Direction(), tt.want)
			}
		})
	}
}

func TestRandomDirection(t *testing.T) {
	trace := func(seed uint64) []opcode.Direction {
		grid, _ := LoadGrid([]string{"?"}, 1, 1)
		vm := New(grid, WithSeed(seed))
		dirs := make([]opcode.Direction, 200)
		for i := range dirs {
			if err := vm.Step(); err != nil {
				t.Fatal(err)
			}
			dirs[i] = vm.Direction()
		}
		return dirs
	}

	a, b := trace(42), trace(42)
	seen := make(map[opcode.Direction]bool)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at step %d", i)
		}
		seen[a[i]] = true
	}
	if len(seen) != opcode.NumDirections {
		t.Errorf("expected all 4 directions over 200 steps, saw %d", len(seen))
	}
}

func TestArithmeticWrapsAndTruncates(t *testing.T) {
	tests := []struct {
		name string
		src  string
		pre  []int32
		want int32
	}{
		{"add overflows", "1+@", []int32{math.MaxInt32}, math.MinInt32},
		{"subtract underflows", "1-@", []int32{math.MinInt32}, math.MaxInt32},
		{"divide truncates toward zero", "2/@", []int32{-7}, -3},
		{"modulo takes dividend sign", "2%@", []int32{-7}, -1},
		{"greater than", "5`@", []int32{9}, 1},
		{"not greater", "9`@", []int32{5}, 0},
		{"not of zero", "!@", []int32{0}, 1},
		{"not of nonzero", "!@", []int32{-4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, tt.src)
			for _, v := range tt.pre {
				vm.stack.Push(v)
			}
			if err := vm.Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := vm.stack.Peek(); got != tt.want {
				t.Errorf("top = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStackInstructions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []int32
	}{
		{"dup", "5:@", []int32{5, 5}},
		{"dup empty", ":@", []int32{0, 0}},
		{"swap", "12\\@", []int32{2, 1}},
		{"swap single", "1\\@", []int32{1, 0}},
		{"discard", "12$@", []int32{1}},
		{"discard empty", "$@", []int32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, vm, err := runProgram(t, tt.src, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := vm.Stack()
			if len(got) != len(tt.want) {
				t.Fatalf("stack = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("stack = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		input   string
		errType ErrorType
		pos     Position
		op      byte
	}{
		{"division by zero", "50/@", "", ErrorArithmetic, Position{2, 0}, '/'},
		{"modulo by zero", "50%@", "", ErrorArithmetic, Position{2, 0}, '%'},
		{"division of empty stack", "/@", "", ErrorArithmetic, Position{0, 0}, '/'},
		{"unknown instruction", "12x@", "", ErrorUnknownInstruction, Position{2, 0}, 'x'},
		{"int from empty input", "&@", "", ErrorIO, Position{0, 0}, '&'},
		{"int from garbage", "&@", "abc", ErrorIO, Position{0, 0}, '&'},
		{"int overflow", "&@", "99999999999", ErrorIO, Position{0, 0}, '&'},
		{"char from empty input", " ~@", "", ErrorIO, Position{1, 0}, '~'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, vm, err := runProgram(t, tt.src, tt.input)
			if !IsErrorType(err, tt.errType) {
				t.Fatalf("expected %s, got %v", tt.errType, err)
			}
			var re *RuntimeError
			if !errors.As(err, &re) {
				t.Fatalf("expected *RuntimeError, got %T", err)
			}
			if !re.HasPos || re.Pos != tt.pos {
				t.Errorf("error position = %v (has=%v), want %v", re.Pos, re.HasPos, tt.pos)
			}
			if re.Op != tt.op {
				t.Errorf("error op = %q, want %q", re.Op, tt.op)
			}
			if vm.Halted() {
				t.Error("a failed run must not be reported as halted")
			}
		})
	}
}

func TestIOErrorWrapsEOF(t *testing.T) {
	_, _, err := runProgram(t, "~@", "")
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected error to wrap io.EOF, got %v", err)
	}
}

func TestOutputFlushedOnError(t *testing.T) {
	out, _, err := runProgram(t, "\"A\",x", "")
	if !IsErrorType(err, ErrorUnknownInstruction) {
		t.Fatalf("expected unknown instruction, got %v", err)
	}
	if out != "A" {
		t.Errorf("output before the error should be flushed, got %q", out)
	}
}

func TestStepLimit(t *testing.T) {
	_, vm, err := runProgram(t, ">", "", WithStepLimit(100))
	if !IsErrorType(err, ErrorStepLimit) {
		t.Fatalf("expected step limit error, got %v", err)
	}
	if vm.Steps() != 100 {
		t.Errorf("expected exactly 100 steps, got %d", vm.Steps())
	}

	// A program that halts within the budget is unaffected.
	if _, _, err := runProgram(t, "12+@", "", WithStepLimit(4)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	t.Run("enforced when stepping directly", func(t *testing.T) {
		vm := newTestVM(t, ">", WithStepLimit(10))
		var err error
		for range 20 {
			if err = vm.Step(); err != nil {
				break
			}
		}
		if !IsErrorType(err, ErrorStepLimit) {
			t.Fatalf("expected step limit error, got %v", err)
		}
		if vm.Steps() != 10 {
			t.Errorf("expected exactly 10 steps, got %d", vm.Steps())
		}
		pos := vm.Position()
		if err := vm.Step(); !IsErrorType(err, ErrorStepLimit) {
			t.Errorf("further steps should keep failing, got %v", err)
		}
		if vm.Position() != pos || vm.Steps() != 10 {
			t.Error("a VM over its step limit should not move")
		}
	})
}

func TestCancellation(t *testing.T) {
	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		vm := newTestVM(t, ">")
		err := vm.Run(ctx)
		if !IsErrorType(err, ErrorCanceled) {
			t.Fatalf("expected canceled error, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected error to wrap context.Canceled, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		vm := newTestVM(t, ">", WithTimeout(20*time.Millisecond))
		err := vm.Run(context.Background())
		if !IsErrorType(err, ErrorCanceled) {
			t.Fatalf("expected canceled error, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to wrap context.DeadlineExceeded, got %v", err)
		}
	})
}

func TestDispatchTableCoversInstructionSet(t *testing.T) {
	for _, info := range opcode.All() {
		if handlers[info.Op] == nil {
			t.Errorf("no handler for %v", info.Op)
		}
	}
	for b := 0; b < 256; b++ {
		if _, ok := opcode.Lookup(byte(b)); !ok && handlers[b] != nil {
			t.Errorf("handler registered for non-instruction %q", rune(b))
		}
	}
}

func TestStepTrace(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	vm := newTestVM(t, "12@", WithLogger(log))
	if err := vm.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The step on '@' sees both digits on the stack.
	if !strings.Contains(buf.String(), `"op":"@","dir":"right","string_mode":false,"depth":2,"top":2`) {
		t.Errorf("trace should report the stack before each step, got:\n%s", buf.String())
	}

	buf.Reset()
	quiet := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	vm = newTestVM(t, "12@", WithLogger(quiet))
	if err := vm.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), `"msg":"step"`) {
		t.Error("steps should not be traced above debug level")
	}
}

func TestPendingRead(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		input       string
		steps       int
		wantWaiting bool
		wantNumber  bool
	}{
		{"character without input", "~", "", 0, true, false},
		{"number without input", "&", "", 0, true, true},
		{"not an input instruction", "1&", "", 0, false, false},
		{"input in string mode", `"&"`, "", 1, false, false},
		{"halted", "@&", "", 1, false, false},
		{"character already buffered", "~~@", "ab", 1, false, false},
		{"number after buffered whitespace", "~&@", "a \n", 1, true, true},
		{"number already buffered", "~&@", "a 7", 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, tt.src, WithInput(strings.NewReader(tt.input)))
			for range tt.steps {
				if err := vm.Step(); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			waiting, number := vm.PendingRead()
			if waiting != tt.wantWaiting || number != tt.wantNumber {
				t.Errorf("PendingRead() = %v, %v, want %v, %v", waiting, number, tt.wantWaiting, tt.wantNumber)
			}
		})
	}
}
