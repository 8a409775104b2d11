package database

import (
	"fmt"
	"strings"

	"tcm-go/internal/catalog"
)

// canonicalWhere is the one predicate every scoped query starts from.
const canonicalWhere = "is_archived = 0 AND is_placeholder = 0"

// fieldColumns whitelists the columns a scope or breakdown may reference.
var fieldColumns = map[catalog.Field]string{
	catalog.FieldDepartment:     "department",
	catalog.FieldSubDepartment:  "sub_department",
	catalog.FieldBucket:         "bucket",
	catalog.FieldTrainingType:   "training_type",
	catalog.FieldType:           "type",
	catalog.FieldScrubStatus:    "scrub_status",
	catalog.FieldInvestDecision: "invest_decision",
	catalog.FieldAudience:       "audience",
	catalog.FieldSalesStage:     "sales_stage",
	catalog.FieldSource:         "source",
}

var classificationColumns = map[catalog.ClassificationField]string{
	catalog.AudienceField:   "audience",
	catalog.SalesStageField: "sales_stage",
}

// whereClause renders scope as a SQL condition with positional arguments.
func whereClause(scope catalog.Scope) (string, []any, error) {
	clauses := []string{canonicalWhere}
	var args []any

	for _, p := range scope.Predicates() {
		if p.IsCountPositive() {
			clauses = append(clauses, "resource_count > 0")
			continue
		}
		col, ok := fieldColumns[p.Field()]
		if !ok {
			return "", nil, fmt.Errorf("unknown scope field: %q", p.Field())
		}
		values := p.Values()
		if len(values) == 0 {
			clauses = append(clauses, "0")
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, placeholders(len(values))))
		for _, v := range values {
			args = append(args, v)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}
