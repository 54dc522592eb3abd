package vm

// Stack is the VM's value stack.
// Popping an empty stack yields 0; Befunge programs rely on this.
type Stack struct {
	items []int32
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{items: make([]int32, 0, 64)}
}

// Push adds v on top.
func (s *Stack) Push(v int32) {
	s.items = append(s.items, v)
}

// Pop removes and returns the top value, or 0 when the stack is empty.
func (s *Stack) Pop() int32 {
	n := len(s.items)
	if n == 0 {
		return 0
	}
	v := s.items[n-1]
	s.items = s.items[:n-1]
	return v
}

// Peek returns the top value without removing it, or 0 when empty.
func (s *Stack) Peek() int32 {
	if len(s.items) == 0 {
		return 0
	}
	return s.items[len(s.items)-1]
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int {
	return len(s.items)
}

// Values returns a copy of the stack, bottom first.
func (s *Stack) Values() []int32 {
	out := make([]int32, len(s.items))
	copy(out, s.items)
	return out
}
