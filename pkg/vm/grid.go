package vm

import (
	"fmt"
	"strings"

	"github.com/zurustar/funge/pkg/opcode"
)

// Canonical Befunge-93 playfield size.
const (
	DefaultWidth  = 80
	DefaultHeight = 25
)

// BlankCell fills every cell not covered by program text.
const BlankCell = byte(opcode.Blank)

// Position is a cell coordinate. Positions held by the VM are always
// inside the grid.
type Position struct {
	X, Y int
}

// Grid is a fixed-size toroidal playfield. Every coordinate passed to
// Get and Set is wrapped, so the grid is never indexed out of range.
type Grid struct {
	width  int
	height int
	cells  []byte
}

// NewGrid creates a blank grid of the given dimensions.
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", width, height)
	}
	cells := make([]byte, width*height)
	for i := range cells {
		cells[i] = BlankCell
	}
	return &Grid{width: width, height: height, cells: cells}, nil
}

// LoadGrid builds a grid from source lines.
// Trailing CR/LF are trimmed from each line. Lines longer than width, or
// more than height lines, are load errors; short lines and missing lines
// stay blank.
func LoadGrid(lines []string, width, height int) (*Grid, error) {
	g, err := NewGrid(width, height)
	if err != nil {
		return nil, err
	}
	for i, line := range lines {
		if i >= height {
			return nil, NewTooManyLinesError(i+1, height)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) > width {
			return nil, NewLineTooLongError(i+1, len(line), width)
		}
		copy(g.cells[i*width:], line)
	}
	return g, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Get returns the cell at (x, y) after wrapping.
func (g *Grid) Get(x, y int) byte {
	return g.cells[g.index(x, y)]
}

// Set stores v at (x, y) after wrapping.
func (g *Grid) Set(x, y int, v byte) {
	g.cells[g.index(x, y)] = v
}

// Advance moves pos one cell in dir, wrapping each axis independently.
func (g *Grid) Advance(pos Position, dir opcode.Direction) Position {
	dx, dy := dir.Delta()
	return Position{
		X: wrap(pos.X+dx, g.width),
		Y: wrap(pos.Y+dy, g.height),
	}
}

// Row returns a copy of row y.
func (g *Grid) Row(y int) []byte {
	y = wrap(y, g.height)
	row := make([]byte, g.width)
	copy(row, g.cells[y*g.width:(y+1)*g.width])
	return row
}

// String renders the grid with trailing blanks removed from each row and
// trailing empty rows dropped.
func (g *Grid) String() string {
	rows := make([]string, g.height)
	last := -1
	for y := 0; y < g.height; y++ {
		rows[y] = strings.TrimRight(string(g.cells[y*g.width:(y+1)*g.width]), " ")
		if rows[y] != "" {
			last = y
		}
	}
	return strings.Join(rows[:last+1], "\n")
}

func (g *Grid) index(x, y int) int {
	return wrap(y, g.height)*g.width + wrap(x, g.width)
}

func wrap(v, n int) int {
	return (v%n + n) % n
}
