// Package opcode defines the Befunge-93 instruction set.
// This package is the single source of truth for which bytes are
// instructions, what class they belong to and how many stack values they
// consume and produce. The VM builds its dispatch table from All().
package opcode

import "fmt"

// Op is a single instruction byte as it appears in a program grid.
type Op byte

// Instruction bytes.
const (
	// Arithmetic: pop a, pop b, push b op a.
	Add Op = '+'
	Sub Op = '-'
	Mul Op = '*'
	Div Op = '/'
	Mod Op = '%'

	// Stack manipulation.
	Dup     Op = ':'
	Swap    Op = '\\'
	Discard Op = '$'

	// Logic.
	Not     Op = '!'
	Greater Op = '`'

	// Direction.
	Right  Op = '>'
	Left   Op = '<'
	Up     Op = '^'
	Down   Op = 'v'
	Random Op = '?'

	// Conditionals pop a value and pick a direction from it.
	IfHorizontal Op = '_'
	IfVertical   Op = '|'

	StringMode Op = '"'

	// I/O.
	OutInt  Op = '.'
	OutChar Op = ','
	InInt   Op = '&'
	InChar  Op = '~'

	// Bridge skips the next cell.
	Bridge Op = '#'

	// Self-modifying code.
	Get Op = 'g'
	Put Op = 'p'

	End   Op = '@'
	Blank Op = ' '
)

// Class groups instructions by the kind of effect they have.
type Class int

const (
	ClassArithmetic Class = iota
	ClassStack
	ClassLogic
	ClassDirection
	ClassRandom
	ClassConditional
	ClassStringMode
	ClassOutput
	ClassInput
	ClassBridge
	ClassCode
	ClassHalt
	ClassLiteral
	ClassBlank
)

var classNames = [...]string{
	ClassArithmetic:  "arithmetic",
	ClassStack:       "stack",
	ClassLogic:       "logic",
	ClassDirection:   "direction",
	ClassRandom:      "random",
	ClassConditional: "conditional",
	ClassStringMode:  "string-mode",
	ClassOutput:      "output",
	ClassInput:       "input",
	ClassBridge:      "bridge",
	ClassCode:        "code",
	ClassHalt:        "halt",
	ClassLiteral:     "literal",
	ClassBlank:       "blank",
}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Info describes one instruction.
// Pops and Pushes describe the stack effect; they are the counts the
// instruction always performs, regardless of the stack depth.
type Info struct {
	Op     Op
	Name   string
	Class  Class
	Pops   int
	Pushes int
}

// table is indexed by the instruction byte. Entries with an empty Name are
// not instructions.
var table [256]Info

var infos = []Info{
	{Add, "add", ClassArithmetic, 2, 1},
	{Sub, "subtract", ClassArithmetic, 2, 1},
	{Mul, "multiply", ClassArithmetic, 2, 1},
	{Div, "divide", ClassArithmetic, 2, 1},
	{Mod, "modulo", ClassArithmetic, 2, 1},

	{Dup, "duplicate", ClassStack, 1, 2},
	{Swap, "swap", ClassStack, 2, 2},
	{Discard, "discard", ClassStack, 1, 0},

	{Not, "not", ClassLogic, 1, 1},
	{Greater, "greater", ClassLogic, 2, 1},

	{Right, "right", ClassDirection, 0, 0},
	{Left, "left", ClassDirection, 0, 0},
	{Up, "up", ClassDirection, 0, 0},
	{Down, "down", ClassDirection, 0, 0},
	{Random, "random", ClassRandom, 0, 0},

	{IfHorizontal, "if-horizontal", ClassConditional, 1, 0},
	{IfVertical, "if-vertical", ClassConditional, 1, 0},

	{StringMode, "string-mode", ClassStringMode, 0, 0},

	{OutInt, "output-int", ClassOutput, 1, 0},
	{OutChar, "output-char", ClassOutput, 1, 0},
	{InInt, "input-int", ClassInput, 0, 1},
	{InChar, "input-char", ClassInput, 0, 1},

	{Bridge, "bridge", ClassBridge, 0, 0},

	{Get, "get", ClassCode, 2, 1},
	{Put, "put", ClassCode, 3, 0},

	{End, "end", ClassHalt, 0, 0},
	{Blank, "blank", ClassBlank, 0, 0},
}

func init() {
	for _, info := range infos {
		table[info.Op] = info
	}
	for d := byte('0'); d <= '9'; d++ {
		table[d] = Info{Op: Op(d), Name: "digit-" + string(rune(d)), Class: ClassLiteral, Pops: 0, Pushes: 1}
	}
}

// Lookup returns the Info for b and whether b is an instruction.
func Lookup(b byte) (Info, bool) {
	info := table[b]
	return info, info.Name != ""
}

// All returns every instruction in byte order.
func All() []Info {
	all := make([]Info, 0, len(infos)+10)
	for _, info := range table {
		if info.Name != "" {
			all = append(all, info)
		}
	}
	return all
}

// IsDigit reports whether b is a literal digit instruction.
func IsDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (op Op) String() string {
	if info, ok := Lookup(byte(op)); ok {
		return fmt.Sprintf("%q (%s)", rune(op), info.Name)
	}
	return fmt.Sprintf("%q", rune(op))
}
