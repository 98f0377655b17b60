package domain

import "fmt"

// TobaccoClass is the tobacco-use rating class.
type TobaccoClass string

const (
	TobaccoNone TobaccoClass = "non_tobacco"
	TobaccoUser TobaccoClass = "tobacco"
)

// Classification identifies one premium grid within a product: the rate
// table an applicant lands in once underwritten. TermYears is 0 for
// whole-life products.
type Classification struct {
	Gender       Gender       `json:"gender"`
	TobaccoClass TobaccoClass `json:"tobaccoClass"`
	HealthClass  string       `json:"healthClass"`
	TermYears    int          `json:"termYears"`
}

// String renders the classification as a stable cache/log key.
func (c Classification) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", c.Gender, c.TobaccoClass, c.HealthClass, c.TermYears)
}

// PremiumRate is one populated cell of a product's premium grid.
// MonthlyPremium is strictly positive; a missing cell is resolved by
// interpolation, never read as zero.
type PremiumRate struct {
	ProductID      string         `json:"productId"`
	Classification Classification `json:"classification"`
	Age            int            `json:"age"`
	FaceAmount     int64          `json:"faceAmount"`
	MonthlyPremium float64        `json:"monthlyPremium"`
}

// RateCell is one (age, faceAmount, premium) triple of a bulk upsert batch.
type RateCell struct {
	Age            int     `json:"age"`
	FaceAmount     int64   `json:"faceAmount"`
	MonthlyPremium float64 `json:"monthlyPremium"`
}
