package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Input is the VM's view of its input stream. The integer and byte
// instructions share one buffer, so mixing them reads the stream in order.
type Input struct {
	r *bufio.Reader
}

// NewInput wraps r.
func NewInput(r io.Reader) *Input {
	return &Input{r: bufio.NewReader(r)}
}

// Pending reports whether the buffer already holds what the next read
// needs: any byte for a character, a non-space byte for a number. It never
// reads from the underlying stream.
func (in *Input) Pending(number bool) bool {
	n := in.r.Buffered()
	if n == 0 {
		return false
	}
	if !number {
		return true
	}
	data, _ := in.r.Peek(n)
	for _, b := range data {
		if !isSpace(b) {
			return true
		}
	}
	return false
}

// ReadByte reads exactly one byte, blocking until it is available.
func (in *Input) ReadByte() (byte, error) {
	return in.r.ReadByte()
}

// ReadInt reads a decimal integer with an optional sign. Leading
// whitespace is skipped. Whitespace after the number is consumed up to and
// including the end of the line, as long as it is already buffered, so a
// following character read does not see the newline that ended the number.
func (in *Input) ReadInt() (int32, error) {
	b, err := in.skipSpace()
	if err != nil {
		return 0, err
	}

	var buf []byte
	if b == '-' || b == '+' {
		buf = append(buf, b)
		if b, err = in.r.ReadByte(); err != nil {
			return 0, fmt.Errorf("sign without digits: %w", err)
		}
	}

	eof := false
	digits := 0
	for b >= '0' && b <= '9' {
		buf = append(buf, b)
		digits++
		if b, err = in.r.ReadByte(); err != nil {
			if err != io.EOF {
				return 0, err
			}
			eof = true
			break
		}
	}
	if !eof {
		_ = in.r.UnreadByte()
	}
	if digits == 0 {
		return 0, fmt.Errorf("expected a decimal integer, got %q", b)
	}

	n, err := strconv.ParseInt(string(buf), 10, 32)
	if err != nil {
		return 0, err
	}
	in.skipLineEnd()
	return int32(n), nil
}

func (in *Input) skipSpace() (byte, error) {
	for {
		b, err := in.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(b) {
			return b, nil
		}
	}
}

func (in *Input) skipLineEnd() {
	for in.r.Buffered() > 0 {
		b, _ := in.r.ReadByte()
		if b == '\n' {
			return
		}
		if !isSpace(b) {
			_ = in.r.UnreadByte()
			return
		}
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Output is the VM's buffered output stream.
type Output struct {
	w *bufio.Writer
}

// NewOutput wraps w.
func NewOutput(w io.Writer) *Output {
	return &Output{w: bufio.NewWriter(w)}
}

// WriteInt writes v in decimal followed by one space.
func (out *Output) WriteInt(v int32) error {
	var scratch [16]byte
	b := strconv.AppendInt(scratch[:0], int64(v), 10)
	b = append(b, ' ')
	_, err := out.w.Write(b)
	return err
}

// WriteChar writes the low byte of v.
func (out *Output) WriteChar(v int32) error {
	return out.w.WriteByte(byte(v))
}

// Flush writes any buffered output.
func (out *Output) Flush() error {
	return out.w.Flush()
}
