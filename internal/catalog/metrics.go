package catalog

import (
	"context"
	"fmt"
	"sort"
)

// metricTotal is the canonical inventory total. Every other metric is a named
// scope narrowing it.
const metricTotal = "total"

// Aggregate is the result of a named metric, optionally broken down.
type Aggregate struct {
	Metric  string `json:"metric"`
	GroupBy Field  `json:"group_by,omitempty"`
	Totals
	Groups []Group `json:"groups,omitempty"`
}

// MetricNames lists every metric Aggregate accepts.
func MetricNames() []string {
	names := append([]string{metricTotal}, ScopeNames()...)
	sort.Strings(names)
	return names
}

func metricScope(name string) (Scope, error) {
	if name == metricTotal {
		return ActiveScope(), nil
	}
	s, ok := NamedScope(name)
	if !ok {
		return Scope{}, &ValidationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", name)}
	}
	return s, nil
}

// Total returns the sum of count over the canonical scope.
func (s *Service) Total(ctx context.Context) (int, error) {
	t, err := s.store.Sum(ctx, ActiveScope())
	if err != nil {
		return 0, fmt.Errorf("summing total: %w", err)
	}
	return t.Count, nil
}

// BreakdownBy groups the canonical scope by field.
func (s *Service) BreakdownBy(ctx context.Context, field Field) ([]Group, error) {
	groups, err := s.store.Breakdown(ctx, ActiveScope(), field)
	if err != nil {
		return nil, fmt.Errorf("breaking down by %s: %w", field, err)
	}
	return groups, nil
}

// Aggregate computes the named metric. When groupBy is non-empty the result
// also carries a breakdown over the same scope.
func (s *Service) Aggregate(ctx context.Context, metric string, groupBy string) (*Aggregate, error) {
	scope, err := metricScope(metric)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.Sum(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("summing %s: %w", metric, err)
	}
	agg := &Aggregate{Metric: metric, Totals: totals}

	if groupBy == "" {
		return agg, nil
	}
	field, err := ParseField(groupBy)
	if err != nil {
		return nil, err
	}
	groups, err := s.store.Breakdown(ctx, scope, field)
	if err != nil {
		return nil, fmt.Errorf("breaking down %s by %s: %w", metric, field, err)
	}
	agg.GroupBy = field
	agg.Groups = groups
	return agg, nil
}

// ListActive returns the canonical-scope resources matching filters, keyed by
// field name.
func (s *Service) ListActive(ctx context.Context, filters map[string][]string) ([]*Resource, error) {
	scope, err := Filters(filters)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, scope)
}

// GetByScope returns the resources of a named scope such as "review_queue".
func (s *Service) GetByScope(ctx context.Context, name string) ([]*Resource, error) {
	scope, ok := NamedScope(name)
	if !ok {
		return nil, &ValidationError{Field: "scope", Reason: fmt.Sprintf("unknown scope %q", name)}
	}
	return s.list(ctx, scope)
}

func (s *Service) list(ctx context.Context, scope Scope) ([]*Resource, error) {
	rs, err := s.store.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", scope, err)
	}
	return rs, nil
}

// Check is one comparison made by Reconcile.
type Check struct {
	Name  string `json:"name"`
	Want  Totals `json:"want"`
	Got   Totals `json:"got"`
	Match bool   `json:"match"`
}

// Reconciliation is the result of comparing independently computed totals.
type Reconciliation struct {
	Checks []Check `json:"checks"`
	OK     bool    `json:"ok"`
}

// Mismatches returns the failing checks.
func (r *Reconciliation) Mismatches() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Match {
			out = append(out, c)
		}
	}
	return out
}

// Reconcile recomputes every named scope through three independent paths
// (SQL sum, listing, breakdown) and reports whether they agree.
func (s *Service) Reconcile(ctx context.Context) (*Reconciliation, error) {
	rec := &Reconciliation{OK: true}
	add := func(name string, want, got Totals) {
		c := Check{Name: name, Want: want, Got: got, Match: want == got}
		if !c.Match {
			rec.OK = false
			s.logger.Warn("totals disagree", "check", name, "want_count", want.Count, "got_count", got.Count, "want_rows", want.Rows, "got_rows", got.Rows)
		}
		rec.Checks = append(rec.Checks, c)
	}

	for _, name := range MetricNames() {
		scope, err := metricScope(name)
		if err != nil {
			return nil, err
		}
		want, err := s.store.Sum(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("summing %s: %w", name, err)
		}

		listed, err := s.list(ctx, scope)
		if err != nil {
			return nil, err
		}
		add(name+"/list", want, sumResources(listed))

		if name != metricTotal {
			continue
		}
		for _, f := range []Field{FieldScrubStatus, FieldDepartment, FieldTrainingType, FieldType} {
			groups, err := s.store.Breakdown(ctx, scope, f)
			if err != nil {
				return nil, fmt.Errorf("breaking down by %s: %w", f, err)
			}
			add(name+"/by_"+string(f), want, sumGroups(groups))
		}
	}
	return rec, nil
}

func sumResources(rs []*Resource) Totals {
	var t Totals
	for _, r := range rs {
		t.Rows++
		t.Count += r.Count
	}
	return t
}

func sumGroups(gs []Group) Totals {
	var t Totals
	for _, g := range gs {
		t.Rows += g.Rows
		t.Count += g.Count
	}
	return t
}
