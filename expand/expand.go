// Package expand turns batch-read path templates into concrete paths.
//
// A Template is an ordered list of dimensions. A Scalar dimension contributes
// the same "key:value" segment to every path. A List dimension is expanded
// over all of its values and adds one coordinate to the index vector. The
// expansion is the Cartesian product of the list dimensions in row-major
// order (leftmost dimension varies slowest).
//
// A one-element List is not the same as a Scalar: it still adds a nesting
// level of size 1.
package expand

import (
	"iter"
	"math"
	"strings"
)

// Sep joins path segments.
const Sep = "/"

// Dimension is one template component, either a scalar or a list of values.
type Dimension struct {
	Key    string
	Values []string
	List   bool
}

// Scalar returns a dimension that contributes no nesting level.
func Scalar(key, value string) Dimension {
	return Dimension{Key: key, Values: []string{value}}
}

// List returns a dimension expanded over values. len(values) may be 0 or 1.
func List(key string, values ...string) Dimension {
	vs := make([]string, len(values))
	copy(vs, values)
	return Dimension{Key: key, Values: vs, List: true}
}

func (d Dimension) segment(i int) string {
	return d.Key + ":" + d.Values[i]
}

// Template is an ordered set of dimensions.
type Template []Dimension

// Shape returns the length of each list dimension, in template order.
func (t Template) Shape() []int {
	shape := make([]int, 0, len(t))
	for _, d := range t {
		if d.List {
			shape = append(shape, len(d.Values))
		}
	}
	return shape
}

// Size is the number of combinations Expand yields. A product that does not
// fit in an int saturates at math.MaxInt.
func (t Template) Size() int {
	n, saturated := 1, false
	for _, d := range t {
		if !d.List {
			continue
		}
		k := len(d.Values)
		if k == 0 {
			return 0
		}
		if saturated || n > math.MaxInt/k {
			saturated = true
			continue
		}
		n *= k
	}
	if saturated {
		return math.MaxInt
	}
	return n
}

// Expand yields (path, index vector) for every combination. The index slice is
// freshly allocated for each yield. Zero dimensions yield exactly ("", []).
func (t Template) Expand() iter.Seq2[string, []int] {
	return func(yield func(string, []int) bool) {
		var lists []int // template positions of list dimensions
		for i, d := range t {
			if d.List {
				if len(d.Values) == 0 {
					return
				}
				lists = append(lists, i)
			}
		}

		segs := make([]string, len(t))
		for i, d := range t {
			if !d.List {
				segs[i] = d.segment(0)
			}
		}

		pos := make([]int, len(lists))
		for {
			for j, ti := range lists {
				segs[ti] = t[ti].segment(pos[j])
			}
			idx := make([]int, len(pos))
			copy(idx, pos)
			if !yield(strings.Join(segs, Sep), idx) {
				return
			}

			// odometer: rightmost list dimension varies fastest
			j := len(pos) - 1
			for ; j >= 0; j-- {
				pos[j]++
				if pos[j] < len(t[lists[j]].Values) {
					break
				}
				pos[j] = 0
			}
			if j < 0 {
				return
			}
		}
	}
}
