package vm

import (
	"fmt"

	"github.com/zurustar/funge/pkg/opcode"
)

// handler executes one instruction. The run loop moves the cursor
// afterwards, so handlers only touch the cursor to add movement (bridge).
type handler func(vm *VM, op opcode.Op) *RuntimeError

// handlers is indexed by cell value; nil means "not an instruction".
var handlers [256]handler

var opHandlers = map[opcode.Op]handler{
	opcode.Add: binary(func(b, a int32) int32 { return b + a }),
	opcode.Sub: binary(func(b, a int32) int32 { return b - a }),
	opcode.Mul: binary(func(b, a int32) int32 { return b * a }),
	opcode.Div: divide,
	opcode.Mod: divide,

	opcode.Dup:     execDup,
	opcode.Swap:    execSwap,
	opcode.Discard: execDiscard,

	opcode.Not:     execNot,
	opcode.Greater: binary(func(b, a int32) int32 { return boolValue(b > a) }),

	opcode.Right:  execDirection,
	opcode.Left:   execDirection,
	opcode.Up:     execDirection,
	opcode.Down:   execDirection,
	opcode.Random: execRandom,

	opcode.IfHorizontal: execIfHorizontal,
	opcode.IfVertical:   execIfVertical,

	opcode.StringMode: execStringMode,

	opcode.OutInt:  execOutInt,
	opcode.OutChar: execOutChar,
	opcode.InInt:   execInInt,
	opcode.InChar:  execInChar,

	opcode.Bridge: execBridge,

	opcode.Get: execGet,
	opcode.Put: execPut,

	opcode.End:   execEnd,
	opcode.Blank: func(*VM, opcode.Op) *RuntimeError { return nil },
}

func init() {
	for _, info := range opcode.All() {
		h := opHandlers[info.Op]
		if h == nil && opcode.IsDigit(byte(info.Op)) {
			h = execDigit
		}
		if h == nil {
			panic(fmt.Sprintf("vm: no handler for instruction %v", info.Op))
		}
		handlers[info.Op] = h
	}
}

// binary pops a, then b, and pushes f(b, a).
func binary(f func(b, a int32) int32) handler {
	return func(vm *VM, _ opcode.Op) *RuntimeError {
		a := vm.stack.Pop()
		b := vm.stack.Pop()
		vm.stack.Push(f(b, a))
		return nil
	}
}

// divide handles / and %. A zero divisor is an error rather than a
// guessed result. Both truncate toward zero.
func divide(vm *VM, op opcode.Op) *RuntimeError {
	a := vm.stack.Pop()
	b := vm.stack.Pop()
	if a == 0 {
		return NewDivisionByZeroError(byte(op), b)
	}
	if op == opcode.Div {
		vm.stack.Push(b / a)
	} else {
		vm.stack.Push(b % a)
	}
	return nil
}

func execDup(vm *VM, _ opcode.Op) *RuntimeError {
	v := vm.stack.Pop()
	vm.stack.Push(v)
	vm.stack.Push(v)
	return nil
}

func execSwap(vm *VM, _ opcode.Op) *RuntimeError {
	a := vm.stack.Pop()
	b := vm.stack.Pop()
	vm.stack.Push(a)
	vm.stack.Push(b)
	return nil
}

func execDiscard(vm *VM, _ opcode.Op) *RuntimeError {
	vm.stack.Pop()
	return nil
}

func execNot(vm *VM, _ opcode.Op) *RuntimeError {
	vm.stack.Push(boolValue(vm.stack.Pop() == 0))
	return nil
}

func execDirection(vm *VM, op opcode.Op) *RuntimeError {
	vm.dir, _ = opcode.DirectionOf(op)
	return nil
}

func execRandom(vm *VM, _ opcode.Op) *RuntimeError {
	vm.dir = opcode.Direction(vm.rng.IntN(opcode.NumDirections))
	return nil
}

func execIfHorizontal(vm *VM, _ opcode.Op) *RuntimeError {
	if vm.stack.Pop() != 0 {
		vm.dir = opcode.DirLeft
	} else {
		vm.dir = opcode.DirRight
	}
	return nil
}

func execIfVertical(vm *VM, _ opcode.Op) *RuntimeError {
	if vm.stack.Pop() != 0 {
		vm.dir = opcode.DirUp
	} else {
		vm.dir = opcode.DirDown
	}
	return nil
}

// execStringMode only turns string mode on; the closing quote is handled
// by the run loop, which never dispatches while string mode is active.
func execStringMode(vm *VM, _ opcode.Op) *RuntimeError {
	vm.stringMode = true
	return nil
}

func execOutInt(vm *VM, _ opcode.Op) *RuntimeError {
	if err := vm.out.WriteInt(vm.stack.Pop()); err != nil {
		return newWriteError(err)
	}
	return nil
}

func execOutChar(vm *VM, _ opcode.Op) *RuntimeError {
	if err := vm.out.WriteChar(vm.stack.Pop()); err != nil {
		return newWriteError(err)
	}
	return nil
}

func execInInt(vm *VM, _ opcode.Op) *RuntimeError {
	if err := vm.out.Flush(); err != nil {
		return newWriteError(err)
	}
	v, err := vm.in.ReadInt()
	if err != nil {
		return NewIOError("an integer", err)
	}
	vm.stack.Push(v)
	return nil
}

func execInChar(vm *VM, _ opcode.Op) *RuntimeError {
	if err := vm.out.Flush(); err != nil {
		return newWriteError(err)
	}
	b, err := vm.in.ReadByte()
	if err != nil {
		return NewIOError("a byte", err)
	}
	vm.stack.Push(int32(b))
	return nil
}

func execBridge(vm *VM, _ opcode.Op) *RuntimeError {
	vm.pos = vm.grid.Advance(vm.pos, vm.dir)
	return nil
}

func execGet(vm *VM, _ opcode.Op) *RuntimeError {
	y := vm.stack.Pop()
	x := vm.stack.Pop()
	vm.stack.Push(int32(vm.grid.Get(int(x), int(y))))
	return nil
}

func execPut(vm *VM, _ opcode.Op) *RuntimeError {
	y := vm.stack.Pop()
	x := vm.stack.Pop()
	v := vm.stack.Pop()
	vm.grid.Set(int(x), int(y), byte(v))
	return nil
}

func execEnd(vm *VM, _ opcode.Op) *RuntimeError {
	vm.halted = true
	return nil
}

func execDigit(vm *VM, op opcode.Op) *RuntimeError {
	vm.stack.Push(int32(op - '0'))
	return nil
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func newWriteError(cause error) *RuntimeError {
	e := NewRuntimeError(ErrorIO, "could not write output")
	e.Err = cause
	return e
}
