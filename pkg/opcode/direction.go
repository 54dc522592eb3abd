package opcode

import "fmt"

// Direction is the heading of the instruction cursor.
type Direction int

// The order matches the clockwise numbering used by the random
// direction instruction.
const (
	DirRight Direction = iota
	DirDown
	DirLeft
	DirUp
)

// NumDirections is the number of distinct directions.
const NumDirections = 4

var deltas = [NumDirections][2]int{
	DirRight: {1, 0},
	DirDown:  {0, 1},
	DirLeft:  {-1, 0},
	DirUp:    {0, -1},
}

// Delta returns the unit step (dx, dy) for d.
// Invalid directions return (0, 0).
func (d Direction) Delta() (dx, dy int) {
	if !d.Valid() {
		return 0, 0
	}
	return deltas[d][0], deltas[d][1]
}

// Valid reports whether d is one of the four directions.
func (d Direction) Valid() bool {
	return d >= DirRight && d <= DirUp
}

func (d Direction) String() string {
	switch d {
	case DirRight:
		return "right"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirUp:
		return "up"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// DirectionOf returns the direction an arrow instruction sets.
func DirectionOf(op Op) (Direction, bool) {
	switch op {
	case Right:
		return DirRight, true
	case Down:
		return DirDown, true
	case Left:
		return DirLeft, true
	case Up:
		return DirUp, true
	}
	return 0, false
}
