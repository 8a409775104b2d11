package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Field names a resource column that scopes may filter on and breakdowns may
// group by. The set is closed; stores map each value to a fixed column.
type Field string

const (
	FieldDepartment     Field = "department"
	FieldSubDepartment  Field = "sub_department"
	FieldBucket         Field = "bucket"
	FieldTrainingType   Field = "training_type"
	FieldType           Field = "type"
	FieldScrubStatus    Field = "scrub_status"
	FieldInvestDecision Field = "invest_decision"
	FieldAudience       Field = "audience"
	FieldSalesStage     Field = "sales_stage"
	FieldSource         Field = "source"
)

// Fields lists every groupable field.
var Fields = []Field{
	FieldDepartment,
	FieldSubDepartment,
	FieldBucket,
	FieldTrainingType,
	FieldType,
	FieldScrubStatus,
	FieldInvestDecision,
	FieldAudience,
	FieldSalesStage,
	FieldSource,
}

// ParseField returns the Field named raw.
func ParseField(raw string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Fields {
		if f == known {
			return f, nil
		}
	}
	return "", &ValidationError{Field: "group_by", Reason: fmt.Sprintf("unknown field %q", raw)}
}

// Predicate narrows a scope. Predicates can only be built with the
// constructors below.
type Predicate struct {
	field         Field
	values        []string
	countPositive bool
}

// FieldIn keeps rows whose field equals one of values.
func FieldIn(f Field, values ...string) Predicate {
	return Predicate{field: f, values: append([]string(nil), values...)}
}

// FieldEquals keeps rows whose field equals value.
func FieldEquals(f Field, value string) Predicate {
	return FieldIn(f, value)
}

// CountPositive keeps rows whose count is greater than zero. It is a display
// filter layered on top of the canonical scope.
func CountPositive() Predicate {
	return Predicate{countPositive: true}
}

// Field returns the filtered field, or "" for CountPositive.
func (p Predicate) Field() Field { return p.field }

// Values returns the accepted values of a FieldIn predicate.
func (p Predicate) Values() []string { return p.values }

// IsCountPositive reports whether p is the count > 0 display filter.
func (p Predicate) IsCountPositive() bool { return p.countPositive }

func (p Predicate) String() string {
	if p.countPositive {
		return "count>0"
	}
	return fmt.Sprintf("%s in (%s)", p.field, strings.Join(p.values, ","))
}

// Scope is the canonical scope (active, non-placeholder rows) narrowed by
// zero or more predicates. The zero value is the canonical scope; there is no
// way to build a Scope that drops it.
type Scope struct {
	preds []Predicate
}

// ActiveScope returns the canonical scope.
func ActiveScope() Scope { return Scope{} }

// Where returns a copy of s narrowed by preds.
func (s Scope) Where(preds ...Predicate) Scope {
	out := make([]Predicate, 0, len(s.preds)+len(preds))
	out = append(out, s.preds...)
	out = append(out, preds...)
	return Scope{preds: out}
}

// Predicates returns the narrowing predicates applied on top of the canonical
// filter.
func (s Scope) Predicates() []Predicate { return s.preds }

func (s Scope) String() string {
	parts := []string{"active", "non-placeholder"}
	for _, p := range s.preds {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, " AND ")
}

// Filters builds a scope from field/value pairs as received from a caller.
func Filters(filters map[string][]string) (Scope, error) {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	s := ActiveScope()
	for _, name := range names {
		f, err := ParseField(name)
		if err != nil {
			return Scope{}, &ValidationError{Field: name, Reason: "not a filterable field"}
		}
		if len(filters[name]) == 0 {
			continue
		}
		s = s.Where(FieldIn(f, filters[name]...))
	}
	return s, nil
}

// namedScopes are the scopes collaborators may request by name.
var namedScopes = map[string]Scope{
	"active":             ActiveScope(),
	"review_queue":       ActiveScope().Where(FieldEquals(FieldScrubStatus, string(StatusNotReviewed))),
	"reviewed":           ActiveScope().Where(FieldIn(FieldScrubStatus, reviewedStatuses()...)),
	"investment_queue":   ActiveScope().Where(FieldIn(FieldScrubStatus, statusStrings(InvestmentQueueStatuses)...)),
	"investment_decided": ActiveScope().Where(FieldIn(FieldScrubStatus, statusStrings(InvestmentQueueStatuses)...), FieldIn(FieldInvestDecision, decisionStrings(InvestDecisions)...)),
	"files":              ActiveScope().Where(FieldEquals(FieldType, string(TypeFile))),
	"folders":            ActiveScope().Where(FieldEquals(FieldType, string(TypeFolder))),
	"links":              ActiveScope().Where(FieldEquals(FieldType, string(TypeLink))),
	"file_count":         ActiveScope().Where(FieldIn(FieldType, string(TypeFile), string(TypeLink))),
}

// NamedScope returns the scope registered under name.
func NamedScope(name string) (Scope, bool) {
	s, ok := namedScopes[name]
	return s, ok
}

// ScopeNames lists the registered scope names in sorted order.
func ScopeNames() []string {
	names := make([]string, 0, len(namedScopes))
	for n := range namedScopes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func reviewedStatuses() []string {
	var out []string
	for _, s := range ScrubStatuses {
		if s != StatusNotReviewed {
			out = append(out, string(s))
		}
	}
	return out
}

func statusStrings(ss []ScrubStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func decisionStrings(ds []InvestDecision) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}
