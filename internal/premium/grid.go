// Package premium implements the sparse rate matrix: per-classification
// grids over (age, face amount) with linear and bilinear interpolation
// for unpopulated cells.
package premium

import (
	"errors"
	"sort"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// ErrRateNotAvailable is returned when the query point is inside the
// populated grid's bounds but no interpolation path exists (an interior
// hole with missing corners). Out-of-bounds queries return
// *domain.OutOfRangeError instead.
var ErrRateNotAvailable = errors.New("rate not available for requested cell")

type cellKey struct {
	age  int
	face int64
}

// Grid is an immutable sparse rate grid for one (product, classification)
// pair. Build one with NewGrid; lookups are safe for concurrent use.
type Grid struct {
	cells map[cellKey]float64
	ages  []int   // sorted, deduped populated ages
	faces []int64 // sorted, deduped populated face amounts
}

// NewGrid builds a grid from populated cells. Duplicate (age, face) pairs
// keep the last value.
func NewGrid(cells []domain.RateCell) *Grid {
	g := &Grid{cells: make(map[cellKey]float64, len(cells))}
	ageSet := make(map[int]struct{})
	faceSet := make(map[int64]struct{})
	for _, cell := range cells {
		g.cells[cellKey{cell.Age, cell.FaceAmount}] = cell.MonthlyPremium
		ageSet[cell.Age] = struct{}{}
		faceSet[cell.FaceAmount] = struct{}{}
	}
	for age := range ageSet {
		g.ages = append(g.ages, age)
	}
	for face := range faceSet {
		g.faces = append(g.faces, face)
	}
	sort.Ints(g.ages)
	sort.Slice(g.faces, func(i, j int) bool { return g.faces[i] < g.faces[j] })
	return g
}

// Cells returns the populated cells in (age, face) order.
func (g *Grid) Cells() []domain.RateCell {
	out := make([]domain.RateCell, 0, len(g.cells))
	for _, age := range g.ages {
		for _, face := range g.faces {
			if premium, ok := g.cells[cellKey{age, face}]; ok {
				out = append(out, domain.RateCell{Age: age, FaceAmount: face, MonthlyPremium: premium})
			}
		}
	}
	return out
}

// Lookup resolves a monthly premium for the query point, trying an exact
// cell, then linear interpolation on each axis, then bilinear
// interpolation from the four surrounding corners. Points outside the
// populated bounds fail with OutOfRangeError; premiums are never
// extrapolated.
func (g *Grid) Lookup(age int, face int64) (float64, error) {
	if len(g.cells) == 0 {
		return 0, ErrRateNotAvailable
	}
	if age < g.ages[0] || age > g.ages[len(g.ages)-1] {
		return 0, &domain.OutOfRangeError{
			Axis: "age", Value: float64(age),
			Min: float64(g.ages[0]), Max: float64(g.ages[len(g.ages)-1]),
		}
	}
	if face < g.faces[0] || face > g.faces[len(g.faces)-1] {
		return 0, &domain.OutOfRangeError{
			Axis: "faceAmount", Value: float64(face),
			Min: float64(g.faces[0]), Max: float64(g.faces[len(g.faces)-1]),
		}
	}

	if premium, ok := g.cells[cellKey{age, face}]; ok {
		return premium, nil
	}

	if premium, ok := g.interpolateAge(age, face); ok {
		return premium, nil
	}
	if premium, ok := g.interpolateFace(age, face); ok {
		return premium, nil
	}
	if premium, ok := g.interpolateBilinear(age, face); ok {
		return premium, nil
	}
	return 0, ErrRateNotAvailable
}

// interpolateAge interpolates between the nearest populated ages that
// both carry a cell at exactly the requested face amount.
func (g *Grid) interpolateAge(age int, face int64) (float64, bool) {
	lo, hi, ok := bracket(g.agesWithFace(face), age)
	if !ok {
		return 0, false
	}
	p0 := g.cells[cellKey{lo, face}]
	p1 := g.cells[cellKey{hi, face}]
	return lerp(float64(lo), p0, float64(hi), p1, float64(age)), true
}

// interpolateFace interpolates between the nearest populated face amounts
// on the row at exactly the requested age.
func (g *Grid) interpolateFace(age int, face int64) (float64, bool) {
	lo, hi, ok := bracket64(g.facesWithAge(age), face)
	if !ok {
		return 0, false
	}
	p0 := g.cells[cellKey{age, lo}]
	p1 := g.cells[cellKey{age, hi}]
	return lerp(float64(lo), p0, float64(hi), p1, float64(face)), true
}

// interpolateBilinear needs four corners: two bracketing ages that both
// carry cells at two face amounts bracketing the query.
func (g *Grid) interpolateBilinear(age int, face int64) (float64, bool) {
	a0, a1, ok := bracket(g.ages, age)
	if !ok {
		return 0, false
	}
	f0, f1, ok := bracket64(g.commonFaces(a0, a1), face)
	if !ok {
		return 0, false
	}
	q00 := g.cells[cellKey{a0, f0}]
	q01 := g.cells[cellKey{a0, f1}]
	q10 := g.cells[cellKey{a1, f0}]
	q11 := g.cells[cellKey{a1, f1}]

	low := lerp(float64(f0), q00, float64(f1), q01, float64(face))
	high := lerp(float64(f0), q10, float64(f1), q11, float64(face))
	return lerp(float64(a0), low, float64(a1), high, float64(age)), true
}

func (g *Grid) agesWithFace(face int64) []int {
	out := make([]int, 0, len(g.ages))
	for _, age := range g.ages {
		if _, ok := g.cells[cellKey{age, face}]; ok {
			out = append(out, age)
		}
	}
	return out
}

func (g *Grid) facesWithAge(age int) []int64 {
	out := make([]int64, 0, len(g.faces))
	for _, face := range g.faces {
		if _, ok := g.cells[cellKey{age, face}]; ok {
			out = append(out, face)
		}
	}
	return out
}

// commonFaces returns face amounts populated at both ages.
func (g *Grid) commonFaces(a0, a1 int) []int64 {
	out := make([]int64, 0, len(g.faces))
	for _, face := range g.faces {
		_, ok0 := g.cells[cellKey{a0, face}]
		_, ok1 := g.cells[cellKey{a1, face}]
		if ok0 && ok1 {
			out = append(out, face)
		}
	}
	return out
}

// bracket finds sorted values lo < v < hi surrounding v. Returns false
// when v is not strictly inside the populated range.
func bracket(sorted []int, v int) (lo, hi int, ok bool) {
	idx := sort.SearchInts(sorted, v)
	if idx == 0 || idx >= len(sorted) {
		return 0, 0, false
	}
	if sorted[idx] == v {
		return 0, 0, false
	}
	return sorted[idx-1], sorted[idx], true
}

func bracket64(sorted []int64, v int64) (lo, hi int64, ok bool) {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= v })
	if idx == 0 || idx >= len(sorted) {
		return 0, 0, false
	}
	if sorted[idx] == v {
		return 0, 0, false
	}
	return sorted[idx-1], sorted[idx], true
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
