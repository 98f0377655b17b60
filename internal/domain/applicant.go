package domain

// ApplicantProfile is the caller-supplied input for an underwriting request.
// Answers maps condition codes to the follow-up answers declared for that
// condition.
type ApplicantProfile struct {
	Age     int                       `json:"age"`
	Gender  Gender                    `json:"gender"`
	Answers map[string]map[string]any `json:"answers"`
}

// Conditions returns the declared condition codes in map order; callers that
// need determinism sort the result.
func (p *ApplicantProfile) Conditions() []string {
	codes := make([]string, 0, len(p.Answers))
	for code := range p.Answers {
		codes = append(codes, code)
	}
	return codes
}

// Target identifies the carrier/product pair being quoted.
type Target struct {
	CarrierID string `json:"carrierId"`
	ProductID string `json:"productId"`
}

// ApplicantContext is the evaluation view of one applicant against one
// condition: intrinsic fields plus that condition's follow-up answers.
// It is immutable for the duration of a resolution.
type ApplicantContext struct {
	Age     int
	Gender  Gender
	Answers map[string]any
}

// Field resolves a predicate field reference against the context. Intrinsic
// fields always resolve; follow-up fields resolve only if the applicant
// answered them. The second return is false for unanswered fields, which
// leaf evaluation treats as "does not match", never as an error.
func (c *ApplicantContext) Field(name string) (any, bool) {
	switch name {
	case FieldAge:
		return c.Age, true
	case FieldGender:
		return string(c.Gender), true
	}
	v, ok := c.Answers[name]
	return v, ok
}
