// Package vm provides error handling for the Befunge virtual machine.
package vm

import (
	"errors"
	"fmt"
)

// ErrorType represents the kind of failure.
type ErrorType string

const (
	// Program errors.
	ErrorLoad               ErrorType = "LOAD_ERROR"
	ErrorUnknownInstruction ErrorType = "UNKNOWN_INSTRUCTION"
	ErrorIO                 ErrorType = "IO_ERROR"
	ErrorArithmetic         ErrorType = "ARITHMETIC_ERROR"

	// Host-side guards. The language itself has no timeouts.
	ErrorCanceled  ErrorType = "CANCELED"
	ErrorStepLimit ErrorType = "STEP_LIMIT"
)

// RuntimeError is the single error type returned by the grid loader and the
// run loop. Every error is fatal: the run loop stops at the first one.
type RuntimeError struct {
	Type    ErrorType
	Message string
	Line    int      // 1-based source line for load errors, -1 otherwise
	Pos     Position // cursor position, valid when HasPos is set
	HasPos  bool
	Op      byte  // cell under the cursor, valid when HasPos is set
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	switch {
	case e.HasPos:
		msg += fmt.Sprintf(" at (%d, %d)", e.Pos.X, e.Pos.Y)
	case e.Line >= 0:
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a RuntimeError without location information.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		Line:    -1,
	}
}

// at attaches the cursor position and the current cell.
func (e *RuntimeError) at(pos Position, op byte) *RuntimeError {
	e.Pos = pos
	e.HasPos = true
	e.Op = op
	return e
}

// IsErrorType reports whether err is, or wraps, a RuntimeError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Type == t
	}
	return false
}

// NewLineTooLongError reports a source line wider than the grid.
func NewLineTooLongError(line, length, width int) *RuntimeError {
	e := NewRuntimeError(ErrorLoad, fmt.Sprintf("line has length %d but must be no longer than %d", length, width))
	e.Line = line
	return e
}

// NewTooManyLinesError reports a source taller than the grid.
func NewTooManyLinesError(line, height int) *RuntimeError {
	e := NewRuntimeError(ErrorLoad, fmt.Sprintf("line is beyond maximum height %d", height))
	e.Line = line
	return e
}

// NewUnknownInstructionError reports a byte that is not an instruction.
func NewUnknownInstructionError(op byte) *RuntimeError {
	return NewRuntimeError(ErrorUnknownInstruction, fmt.Sprintf("unknown instruction %q (%d)", rune(op), op))
}

// NewIOError reports an input instruction that could not obtain a value.
func NewIOError(what string, cause error) *RuntimeError {
	e := NewRuntimeError(ErrorIO, fmt.Sprintf("could not read %s from input", what))
	e.Err = cause
	return e
}

// NewDivisionByZeroError reports a zero divisor for / or %.
func NewDivisionByZeroError(op byte, dividend int32) *RuntimeError {
	name := "division"
	if op == '%' {
		name = "modulo"
	}
	return NewRuntimeError(ErrorArithmetic, fmt.Sprintf("%s by zero (%d %c 0)", name, dividend, op))
}

// NewCanceledError reports a run stopped by its context.
func NewCanceledError(cause error) *RuntimeError {
	e := NewRuntimeError(ErrorCanceled, "execution canceled")
	e.Err = cause
	return e
}

// NewStepLimitError reports a run that exceeded its step budget.
func NewStepLimitError(limit uint64) *RuntimeError {
	return NewRuntimeError(ErrorStepLimit, fmt.Sprintf("step limit %d exceeded", limit))
}
