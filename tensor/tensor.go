// Package tensor holds batch-read results: a dense, row-major grid of optional
// strings whose shape mirrors the list dimensions of a path template.
package tensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrTooLarge is returned by Make when the cell count does not fit in an int.
var ErrTooLarge = errors.New("tensor: shape too large")

// Tensor is allocated eagerly from its shape. A nil cell means "absent",
// which is distinct from a present empty string.
type Tensor struct {
	shape   []int
	strides []int
	cells   []*string
}

// New allocates a tensor of the given shape. An empty shape is a single cell.
// Negative dimensions are treated as 0. New panics if the cell count overflows;
// use Make for shapes that come from requests.
func New(shape []int) *Tensor {
	t, err := Make(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Make is New with an overflow check instead of a panic.
func Make(shape []int) (*Tensor, error) {
	s := make([]int, len(shape))
	for i, d := range shape {
		s[i] = max(d, 0)
	}
	n := 1
	for _, d := range s {
		if d == 0 {
			n = 0
			break
		}
		if n > math.MaxInt/d {
			return nil, fmt.Errorf("%w: %v", ErrTooLarge, shape)
		}
		n *= d
	}
	strides := make([]int, len(s))
	st := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = st
		if s[i] > 0 && st <= math.MaxInt/s[i] {
			st *= s[i]
		}
	}
	return &Tensor{shape: s, strides: strides, cells: make([]*string, n)}, nil
}

func (t *Tensor) Shape() []int {
	out := make([]int, len(t.shape))
	copy(out, t.shape)
	return out
}

// Len is the total number of cells.
func (t *Tensor) Len() int { return len(t.cells) }

func (t *Tensor) offset(idx []int) (int, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("tensor: index rank %d, shape rank %d", len(idx), len(t.shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			return 0, fmt.Errorf("tensor: index %v out of range for shape %v", idx, t.shape)
		}
		off += x * t.strides[i]
	}
	return off, nil
}

// Set stores v at idx. v may be nil (absent).
func (t *Tensor) Set(idx []int, v *string) error {
	off, err := t.offset(idx)
	if err != nil {
		return err
	}
	t.cells[off] = v
	return nil
}

// At returns the cell at idx.
func (t *Tensor) At(idx ...int) (*string, error) {
	off, err := t.offset(idx)
	if err != nil {
		return nil, err
	}
	return t.cells[off], nil
}

// Nested converts to nested []any with nil for absent cells. Rank 0 returns
// the single value itself.
func (t *Tensor) Nested() any {
	return t.nest(0, 0)
}

func (t *Tensor) nest(dim, off int) any {
	if dim == len(t.shape) {
		if v := t.cells[off]; v != nil {
			return *v
		}
		return nil
	}
	out := make([]any, t.shape[dim])
	for i := range out {
		out[i] = t.nest(dim+1, off+i*t.strides[dim])
	}
	return out
}

func (t *Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Nested())
}
