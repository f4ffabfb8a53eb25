package partition

import (
	"fmt"

	"github.com/notargets/gotpfa/mesh"
)

// Tag is a handle to a named per-element attribute
type Tag struct {
	Name string
	Type mesh.DataType
	Size int
}

// TagStore keeps per-element tag values, flattened Size values per element
type TagStore struct {
	n     int
	tags  map[string]Tag
	ints  map[string][]int
	reals map[string][]float64
}

func NewTagStore(infos []mesh.TagInfo) (ts *TagStore, err error) {
	ts = &TagStore{
		tags:  make(map[string]Tag),
		ints:  make(map[string][]int),
		reals: make(map[string][]float64),
	}
	for _, ti := range infos {
		if ti.Size < 1 {
			return nil, fmt.Errorf("tag %s has invalid size %d", ti.Name, ti.Size)
		}
		if _, dup := ts.tags[ti.Name]; dup {
			return nil, fmt.Errorf("tag %s declared twice", ti.Name)
		}
		switch ti.Type {
		case mesh.TypeInteger:
			ts.ints[ti.Name] = nil
		case mesh.TypeDouble:
			ts.reals[ti.Name] = nil
		default:
			return nil, fmt.Errorf("tag %s has unknown type %q", ti.Name, ti.Type)
		}
		ts.tags[ti.Name] = Tag{Name: ti.Name, Type: ti.Type, Size: ti.Size}
	}
	return
}

// Grow makes room for n elements; new values are zero
func (ts *TagStore) Grow(n int) {
	if n <= ts.n {
		return
	}
	for name, vals := range ts.ints {
		ts.ints[name] = append(vals, make([]int, (n-ts.n)*ts.tags[name].Size)...)
	}
	for name, vals := range ts.reals {
		ts.reals[name] = append(vals, make([]float64, (n-ts.n)*ts.tags[name].Size)...)
	}
	ts.n = n
}

func (ts *TagStore) Len() int { return ts.n }

// TagGetHandle looks a tag up by name
func (ts *TagStore) TagGetHandle(name string) (tag Tag, err error) {
	var ok bool
	if tag, ok = ts.tags[name]; !ok {
		err = fmt.Errorf("%w: %s", mesh.ErrTagNotFound, name)
	}
	return
}

func (ts *TagStore) check(tag Tag, dt mesh.DataType, h Handle, n int) error {
	if got, ok := ts.tags[tag.Name]; !ok || got != tag {
		return fmt.Errorf("%w: %s", mesh.ErrTagNotFound, tag.Name)
	}
	if tag.Type != dt {
		return fmt.Errorf("tag %s holds %s values, not %s", tag.Name, tag.Type, dt)
	}
	if int(h) < 0 || int(h) >= ts.n {
		return fmt.Errorf("element handle %d out of range [0,%d)", h, ts.n)
	}
	if n != tag.Size {
		return fmt.Errorf("tag %s has %d values per element, buffer holds %d", tag.Name, tag.Size, n)
	}
	return nil
}

// GetDoubles copies the values of tag on element h into dst
func (ts *TagStore) GetDoubles(tag Tag, h Handle, dst []float64) (err error) {
	if err = ts.check(tag, mesh.TypeDouble, h, len(dst)); err != nil {
		return
	}
	copy(dst, ts.reals[tag.Name][int(h)*tag.Size:])
	return
}

func (ts *TagStore) SetDoubles(tag Tag, h Handle, src []float64) (err error) {
	if err = ts.check(tag, mesh.TypeDouble, h, len(src)); err != nil {
		return
	}
	copy(ts.reals[tag.Name][int(h)*tag.Size:], src)
	return
}

func (ts *TagStore) GetInts(tag Tag, h Handle, dst []int) (err error) {
	if err = ts.check(tag, mesh.TypeInteger, h, len(dst)); err != nil {
		return
	}
	copy(dst, ts.ints[tag.Name][int(h)*tag.Size:])
	return
}

func (ts *TagStore) SetInts(tag Tag, h Handle, src []int) (err error) {
	if err = ts.check(tag, mesh.TypeInteger, h, len(src)); err != nil {
		return
	}
	copy(ts.ints[tag.Name][int(h)*tag.Size:], src)
	return
}
