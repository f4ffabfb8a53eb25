package mesh

import (
	"errors"
	"fmt"
)

// Names of the element attributes written by the mesh preparation stage.
// These are shared with upstream tools and must not change.
const (
	GlobalIDTag     = "GLOBAL_ID"
	CentroidTag     = "CENTROID"
	PermeabilityTag = "PERMEABILITY"
	DirichletBCTag  = "DIRICHLET_BC"
)

var ErrTagNotFound = errors.New("tag not found")

// DataType of a tag's values
type DataType string

const (
	TypeInteger DataType = "int"
	TypeDouble  DataType = "double"
)

// TagInfo declares a tag: its name, value type and the number of values
// stored per element.
type TagInfo struct {
	Name string   `json:"name"`
	Type DataType `json:"type"`
	Size int      `json:"size"`
}

// TagSchema is the set of tags the assembly reads
var TagSchema = []TagInfo{
	{Name: GlobalIDTag, Type: TypeInteger, Size: 1},
	{Name: CentroidTag, Type: TypeDouble, Size: 3},
	{Name: PermeabilityTag, Type: TypeDouble, Size: 9},
	{Name: DirichletBCTag, Type: TypeDouble, Size: 1},
}

// LookupTag finds a tag declaration by name
func LookupTag(tags []TagInfo, name string) (TagInfo, error) {
	for _, ti := range tags {
		if ti.Name == name {
			return ti, nil
		}
	}
	return TagInfo{}, fmt.Errorf("%w: %s", ErrTagNotFound, name)
}

// CheckSchema verifies that every tag in TagSchema is declared with the
// expected type and size.
func CheckSchema(tags []TagInfo) error {
	for _, want := range TagSchema {
		got, err := LookupTag(tags, want.Name)
		if err != nil {
			return err
		}
		if got.Type != want.Type || got.Size != want.Size {
			return fmt.Errorf("tag %s declared as %s[%d], expected %s[%d]",
				want.Name, got.Type, got.Size, want.Type, want.Size)
		}
	}
	return nil
}
