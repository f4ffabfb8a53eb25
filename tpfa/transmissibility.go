// Package tpfa computes two-point flux approximation coefficients and
// assembles the rows of the pressure matrix for the owned cells of a rank.
//
// The package depends on neither the mesh nor the matrix implementation:
// attributes come in through AttributeProvider and rows go out through
// RowSink.
package tpfa

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// EquivalentPermeability blends the permeabilities of two cells sharing a
// face. The smaller of the two dominates.
func EquivalentPermeability(k1, k2 float64) float64 {
	return 2 * k1 * k2 / (k1 + k2)
}

// DistanceFunc combines two cell centroids into the denominator of the flux
// coefficient. It must be symmetric in its arguments.
type DistanceFunc func(c1, c2 r3.Vec) float64

// CentroidDistance squares the component sums of the two centroids. This is
// the rule the reference assembly uses; note that it grows with the distance
// of the pair from the origin, not with their separation.
func CentroidDistance(c1, c2 r3.Vec) float64 {
	s := r3.Add(c1, c2)
	return r3.Dot(s, s)
}

// EuclideanDistance is |c1-c2|
func EuclideanDistance(c1, c2 r3.Vec) float64 {
	return r3.Norm(r3.Sub(c1, c2))
}

// SquaredDistance is |c1-c2|^2
func SquaredDistance(c1, c2 r3.Vec) float64 {
	return r3.Norm2(r3.Sub(c1, c2))
}

// DistanceByName maps a configuration name onto a distance rule
func DistanceByName(name string) (DistanceFunc, error) {
	switch strings.ToLower(name) {
	case "", "additive":
		return CentroidDistance, nil
	case "euclidean":
		return EuclideanDistance, nil
	case "squared":
		return SquaredDistance, nil
	}
	return nil, fmt.Errorf("unknown distance rule %q, want additive, euclidean or squared", name)
}

// PermeabilityTensor is a 3x3 permeability, row major
type PermeabilityTensor [9]float64

func (k PermeabilityTensor) At(i, j int) float64 { return k[3*i+j] }

// IsSymmetric reports whether K equals its transpose within tol
func (k PermeabilityTensor) IsSymmetric(tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			d := k.At(i, j) - k.At(j, i)
			if d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}

// PermeabilityProjection reduces the tensor of the cell at c1 to the scalar
// used for the face it shares with the cell at c2.
type PermeabilityProjection func(k PermeabilityTensor, c1, c2 r3.Vec) float64

// FirstDiagonal returns Kxx regardless of direction. Placeholder physics:
// exact only for isotropic tensors.
func FirstDiagonal(k PermeabilityTensor, _, _ r3.Vec) float64 {
	return k[0]
}

// Directional returns n^T K n, with n the unit vector from c1 to c2
func Directional(k PermeabilityTensor, c1, c2 r3.Vec) float64 {
	n := r3.Unit(r3.Sub(c2, c1))
	kn := r3.Vec{
		X: k.At(0, 0)*n.X + k.At(0, 1)*n.Y + k.At(0, 2)*n.Z,
		Y: k.At(1, 0)*n.X + k.At(1, 1)*n.Y + k.At(1, 2)*n.Z,
		Z: k.At(2, 0)*n.X + k.At(2, 1)*n.Y + k.At(2, 2)*n.Z,
	}
	return r3.Dot(n, kn)
}

func ProjectionByName(name string) (PermeabilityProjection, error) {
	switch strings.ToLower(name) {
	case "", "first-diagonal":
		return FirstDiagonal, nil
	case "directional":
		return Directional, nil
	}
	return nil, fmt.Errorf("unknown permeability projection %q, want first-diagonal or directional", name)
}
