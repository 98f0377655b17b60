package domain

// ProductKind distinguishes term products from whole-life products.
// Whole-life products carry no term length; their premium classification
// uses TermYears = 0.
type ProductKind string

const (
	ProductTerm      ProductKind = "term"
	ProductWholeLife ProductKind = "whole_life"
)

// Product is carrier reference data: one insurable product with its
// issue-age window. Premium rates and age-band rule generation key off it.
type Product struct {
	ID          string      `json:"id"`
	CarrierID   string      `json:"carrierId"`
	Name        string      `json:"name"`
	Kind        ProductKind `json:"kind"`
	TermYears   int         `json:"termYears,omitempty"` // 0 for whole life
	MinIssueAge int         `json:"minIssueAge"`
	MaxIssueAge int         `json:"maxIssueAge"`
}
