package catalog

import (
	"fmt"
	"strings"
)

// Names of the human-entered fields that rule tables can require.
const (
	fieldStatus   = "status"
	fieldReason   = "reason"
	fieldOwner    = "owner"
	fieldNotes    = "notes"
	fieldDecision = "decision"
	fieldEffort   = "effort"
	fieldKeys     = "keys"
	fieldValue    = "value"
	fieldKey      = "key"
)

// reviewRequires lists, per status, the fields a review decision must carry.
var reviewRequires = map[ScrubStatus][]string{
	StatusNotReviewed: nil,
	StatusKeep:        nil,
	StatusModify:      {fieldReason},
	StatusSunset:      {fieldReason},
	StatusGap:         {fieldNotes},
}

// investmentRequires lists, per decision, the fields an investment decision
// must carry.
var investmentRequires = map[InvestDecision][]string{
	DecisionBuild:     {fieldOwner, fieldEffort},
	DecisionBuy:       {fieldOwner, fieldEffort},
	DecisionAssignSME: {fieldOwner, fieldEffort},
	DecisionDefer:     {fieldOwner, fieldNotes},
}

// ClassificationField names a hand-settable classification column.
type ClassificationField string

const (
	AudienceField   ClassificationField = "audience"
	SalesStageField ClassificationField = "sales_stage"
)

type classificationRule struct {
	clearable bool
	vocab     []string
}

var classificationRules = map[ClassificationField]classificationRule{
	AudienceField:   {clearable: false, vocab: Audiences},
	SalesStageField: {clearable: true, vocab: SalesStages},
}

// ParseClassificationField returns the field named raw, if it is hand-settable.
func ParseClassificationField(raw string) (ClassificationField, bool) {
	f := ClassificationField(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := classificationRules[f]
	return f, ok
}

// ReviewInput is a review decision as received from a caller.
type ReviewInput struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Owner  string `json:"owner"`
	Notes  string `json:"notes"`
}

// normalize validates in against the review rule table and returns the
// canonical decision.
func (in ReviewInput) normalize() (Review, error) {
	var errs ValidationErrors

	if strings.TrimSpace(in.Status) == "" {
		return Review{}, ValidationErrors{{Field: fieldStatus, Reason: "required"}}
	}
	status, ok := ParseScrubStatus(in.Status)
	if !ok {
		return Review{}, ValidationErrors{{Field: fieldStatus, Reason: fmt.Sprintf("unknown status %q", in.Status)}}
	}

	r := Review{
		Status: status,
		Owner:  strings.TrimSpace(in.Owner),
		Notes:  strings.TrimSpace(in.Notes),
	}
	if raw := strings.TrimSpace(in.Reason); raw != "" {
		reason, ok := ParseScrubReason(raw)
		if !ok {
			errs = append(errs, &ValidationError{Field: fieldReason, Reason: fmt.Sprintf("unknown reason %q", in.Reason)})
		}
		r.Reason = reason
	}

	values := map[string]string{
		fieldReason: string(r.Reason),
		fieldOwner:  r.Owner,
		fieldNotes:  r.Notes,
	}
	errs = append(errs, missing(reviewRequires[status], values, "required for status "+string(status))...)
	return r, errs.err()
}

// InvestmentInput is an investment decision as received from a caller.
type InvestmentInput struct {
	Decision string `json:"decision"`
	Owner    string `json:"owner"`
	Effort   string `json:"effort"`
	Notes    string `json:"notes"`
}

// normalize validates in against the investment rule table and returns the
// canonical decision.
func (in InvestmentInput) normalize() (Investment, error) {
	if strings.TrimSpace(in.Decision) == "" {
		return Investment{}, ValidationErrors{{Field: fieldDecision, Reason: "required"}}
	}
	decision, ok := ParseInvestDecision(in.Decision)
	if !ok {
		return Investment{}, ValidationErrors{{Field: fieldDecision, Reason: fmt.Sprintf("unknown decision %q", in.Decision)}}
	}

	inv := Investment{
		Decision: decision,
		Owner:    strings.TrimSpace(in.Owner),
		Effort:   strings.TrimSpace(in.Effort),
		Notes:    strings.TrimSpace(in.Notes),
	}
	values := map[string]string{
		fieldOwner:  inv.Owner,
		fieldEffort: inv.Effort,
		fieldNotes:  inv.Notes,
	}
	return inv, missing(investmentRequires[decision], values, "required for decision "+string(decision)).err()
}

// normalizeClassification validates a bulk classification value and returns
// its canonical spelling. An empty result clears the field.
func normalizeClassification(field ClassificationField, value string) (string, error) {
	rule, ok := classificationRules[field]
	if !ok {
		return "", &ValidationError{Field: "field", Reason: fmt.Sprintf("%q is not a settable classification field", field)}
	}
	if strings.TrimSpace(value) == "" {
		if !rule.clearable {
			return "", &ValidationError{Field: string(field), Reason: "cannot be cleared"}
		}
		return "", nil
	}
	v, ok := canonicalOf(value, rule.vocab)
	if !ok {
		return "", &ValidationError{Field: string(field), Reason: fmt.Sprintf("unknown value %q", value)}
	}
	return v, nil
}

func missing(required []string, values map[string]string, reason string) ValidationErrors {
	var errs ValidationErrors
	for _, f := range required {
		if values[f] == "" {
			errs = append(errs, &ValidationError{Field: f, Reason: reason})
		}
	}
	return errs
}
