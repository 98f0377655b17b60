package premium

import (
	"fmt"
	"sync"

	"github.com/opensource-insurance/harrier/internal/domain"
)

// Store holds the in-memory rate grids, keyed by product and
// classification. Grids are replaced wholesale per classification; reads
// take a read lock so rate reloads never block quoting.
type Store struct {
	mu    sync.RWMutex
	grids map[string]map[domain.Classification]*Grid
}

// NewStore creates an empty rate store.
func NewStore() *Store {
	return &Store{grids: make(map[string]map[domain.Classification]*Grid)}
}

// ValidateBatch checks an upsert batch before it reaches storage: every
// premium strictly positive, no duplicate cells, sane axes. Returns a
// *domain.ValidationError describing the first problem.
func ValidateBatch(cells []domain.RateCell) error {
	if len(cells) == 0 {
		return &domain.ValidationError{Detail: "batch contains no cells"}
	}
	seen := make(map[cellKey]struct{}, len(cells))
	for _, cell := range cells {
		if cell.MonthlyPremium <= 0 {
			return &domain.ValidationError{
				Detail: fmt.Sprintf("cell (age=%d, face=%d): premium must be positive, got %v", cell.Age, cell.FaceAmount, cell.MonthlyPremium),
			}
		}
		if cell.Age < 0 {
			return &domain.ValidationError{Detail: fmt.Sprintf("cell age %d is negative", cell.Age)}
		}
		if cell.FaceAmount <= 0 {
			return &domain.ValidationError{Detail: fmt.Sprintf("cell face amount %d must be positive", cell.FaceAmount)}
		}
		key := cellKey{cell.Age, cell.FaceAmount}
		if _, dup := seen[key]; dup {
			return &domain.ValidationError{Detail: fmt.Sprintf("duplicate cell (age=%d, face=%d)", cell.Age, cell.FaceAmount)}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Replace swaps in a new grid for one (product, classification) pair.
// The batch is validated first; a bad batch leaves the existing grid
// untouched.
func (s *Store) Replace(productID string, class domain.Classification, cells []domain.RateCell) error {
	if err := ValidateBatch(cells); err != nil {
		return err
	}
	grid := NewGrid(cells)

	s.mu.Lock()
	defer s.mu.Unlock()
	byClass, ok := s.grids[productID]
	if !ok {
		byClass = make(map[domain.Classification]*Grid)
		s.grids[productID] = byClass
	}
	byClass[class] = grid
	return nil
}

// ReloadAll rebuilds every grid from a flat rate listing, replacing the
// whole store atomically.
func (s *Store) ReloadAll(rates []domain.PremiumRate) {
	staged := make(map[string]map[domain.Classification][]domain.RateCell)
	for _, rate := range rates {
		byClass, ok := staged[rate.ProductID]
		if !ok {
			byClass = make(map[domain.Classification][]domain.RateCell)
			staged[rate.ProductID] = byClass
		}
		byClass[rate.Classification] = append(byClass[rate.Classification], domain.RateCell{
			Age:            rate.Age,
			FaceAmount:     rate.FaceAmount,
			MonthlyPremium: rate.MonthlyPremium,
		})
	}

	fresh := make(map[string]map[domain.Classification]*Grid, len(staged))
	for productID, byClass := range staged {
		grids := make(map[domain.Classification]*Grid, len(byClass))
		for class, cells := range byClass {
			grids[class] = NewGrid(cells)
		}
		fresh[productID] = grids
	}

	s.mu.Lock()
	s.grids = fresh
	s.mu.Unlock()
}

// Lookup resolves the base monthly premium for a classification.
func (s *Store) Lookup(productID string, class domain.Classification, age int, face int64) (float64, error) {
	s.mu.RLock()
	grid, ok := s.grids[productID][class]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrRateNotAvailable
	}
	return grid.Lookup(age, face)
}

// Quote prices an aggregate outcome: base rate for the classification,
// loaded 25% per table, plus any flat extra charged per $1,000 of face.
func (s *Store) Quote(productID string, class domain.Classification, age int, face int64, outcome *domain.AggregateOutcome) (float64, error) {
	base, err := s.Lookup(productID, class, age, face)
	if err != nil {
		return 0, err
	}
	monthly := base
	if outcome != nil {
		monthly *= 1.0 + 0.25*float64(outcome.TableRating)
		if outcome.FlatExtraPerThousand > 0 {
			monthly += outcome.FlatExtraPerThousand * float64(face) / 1000.0 / 12.0
		}
	}
	return monthly, nil
}

// GridCount returns the number of loaded (product, classification) grids.
func (s *Store) GridCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, byClass := range s.grids {
		count += len(byClass)
	}
	return count
}
