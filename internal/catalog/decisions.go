package catalog

import (
	"context"
	"fmt"
	"strings"
)

// RecordReview validates and stores a review decision for key. Invalid input
// is rejected with a validation error before anything is written.
func (s *Service) RecordReview(ctx context.Context, key string, in ReviewInput) error {
	review, err := in.normalize()
	if err != nil {
		return err
	}
	if err := s.requireEditable(ctx, key); err != nil {
		return err
	}

	review.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.SetReview(ctx, key, review); err != nil {
		return fmt.Errorf("recording review: %w", err)
	}

	s.logger.Info("review recorded", "key", key, "status", review.Status)
	return nil
}

// RecordInvestment validates and stores an investment decision for key.
// Owner is always required; effort is required for build, buy and assign_sme;
// notes are required for defer.
func (s *Service) RecordInvestment(ctx context.Context, key string, in InvestmentInput) error {
	inv, err := in.normalize()
	if err != nil {
		return err
	}
	if err := s.requireEditable(ctx, key); err != nil {
		return err
	}

	inv.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.SetInvestment(ctx, key, inv); err != nil {
		return fmt.Errorf("recording investment: %w", err)
	}

	s.logger.Info("investment recorded", "key", key, "decision", inv.Decision)
	return nil
}

// BulkUpdateClassification sets a hand-settable classification field on every
// key in one transaction. Archived and placeholder rows are left alone. It
// returns the number of rows updated.
func (s *Service) BulkUpdateClassification(ctx context.Context, keys []string, field string, value string) (int, error) {
	f, ok := ParseClassificationField(field)
	if !ok {
		return 0, &ValidationError{Field: "field", Reason: fmt.Sprintf("%q is not a settable classification field", field)}
	}

	var cleaned []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return 0, &ValidationError{Field: fieldKeys, Reason: "at least one key required"}
	}

	v, err := normalizeClassification(f, value)
	if err != nil {
		return 0, err
	}

	n, err := s.store.SetClassification(ctx, cleaned, f, v)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", f, err)
	}

	s.logger.Info("classification updated", "field", f, "value", v, "requested", len(cleaned), "updated", n)
	return n, nil
}

// requireEditable checks that key names an active, non-placeholder resource.
func (s *Service) requireEditable(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return &ValidationError{Field: fieldKey, Reason: "required"}
	}
	r, err := s.store.FindResource(ctx, key)
	if err != nil {
		return fmt.Errorf("finding resource: %w", err)
	}
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if r.IsArchived {
		return &ValidationError{Field: fieldKey, Reason: "resource is archived"}
	}
	if r.IsPlaceholder {
		return &ValidationError{Field: fieldKey, Reason: "placeholder rows carry no decisions"}
	}
	return nil
}
