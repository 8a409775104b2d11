package catalog

import "strings"

// ScrubStatus is the review outcome for a resource.
type ScrubStatus string

const (
	StatusNotReviewed ScrubStatus = "not_reviewed"
	StatusKeep        ScrubStatus = "keep"
	StatusModify      ScrubStatus = "modify"
	StatusSunset      ScrubStatus = "sunset"
	StatusGap         ScrubStatus = "gap"
)

// ScrubStatuses lists every legal status in display order.
var ScrubStatuses = []ScrubStatus{StatusNotReviewed, StatusKeep, StatusModify, StatusSunset, StatusGap}

// InvestmentQueueStatuses are the review statuses that route a resource into
// the investment queue.
var InvestmentQueueStatuses = []ScrubStatus{StatusModify, StatusGap}

var legacyScrubStatuses = map[string]ScrubStatus{
	"unreviewed":   StatusNotReviewed,
	"not reviewed": StatusNotReviewed,
	"pass":         StatusKeep,
	"include":      StatusKeep,
	"hold":         StatusModify,
	"block":        StatusSunset,
}

// ParseScrubStatus maps a canonical or legacy status spelling to its
// canonical value. Matching ignores case and surrounding space.
func ParseScrubStatus(raw string) (ScrubStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, st := range ScrubStatuses {
		if s == string(st) {
			return st, true
		}
	}
	st, ok := legacyScrubStatuses[s]
	return st, ok
}

// ScrubReason qualifies a modify or sunset decision.
type ScrubReason string

const (
	ReasonIncomplete     ScrubReason = "incomplete"
	ReasonOutdated       ScrubReason = "outdated"
	ReasonWrongAudience  ScrubReason = "wrong_audience"
	ReasonDuplicate      ScrubReason = "duplicate"
	ReasonUnclearIntent  ScrubReason = "unclear_intent"
	ReasonComplianceRisk ScrubReason = "compliance_risk"
)

var ScrubReasons = []ScrubReason{
	ReasonIncomplete,
	ReasonOutdated,
	ReasonWrongAudience,
	ReasonDuplicate,
	ReasonUnclearIntent,
	ReasonComplianceRisk,
}

// ParseScrubReason accepts "Wrong Audience", "wrong-audience" and
// "wrong_audience" alike.
func ParseScrubReason(raw string) (ScrubReason, bool) {
	s := slug(raw)
	for _, r := range ScrubReasons {
		if s == string(r) {
			return r, true
		}
	}
	return "", false
}

// InvestDecision is the investment outcome for a resource in the queue.
type InvestDecision string

const (
	DecisionBuild     InvestDecision = "build"
	DecisionBuy       InvestDecision = "buy"
	DecisionAssignSME InvestDecision = "assign_sme"
	DecisionDefer     InvestDecision = "defer"
)

var InvestDecisions = []InvestDecision{DecisionBuild, DecisionBuy, DecisionAssignSME, DecisionDefer}

var legacyInvestDecisions = map[string]InvestDecision{
	"assign": DecisionAssignSME,
	"sme":    DecisionAssignSME,
}

// ParseInvestDecision maps a canonical or legacy decision spelling to its
// canonical value.
func ParseInvestDecision(raw string) (InvestDecision, bool) {
	s := slug(raw)
	for _, d := range InvestDecisions {
		if s == string(d) {
			return d, true
		}
	}
	d, ok := legacyInvestDecisions[s]
	return d, ok
}

// Audiences is the closed audience vocabulary.
var Audiences = []string{
	"Direct Sales",
	"Indirect Sales",
	"Integration",
	"FI",
	"Partner Management",
	"Operations",
	"Compliance",
	"POS",
}

// SalesStages is the closed sales-stage vocabulary, in stage order.
var SalesStages = []string{
	"stage_1_identify",
	"stage_2_appointment",
	"stage_3_prep",
	"stage_4_make_sale",
	"stage_5_close",
	"stage_6_referrals",
}

// canonicalOf returns the element of vocab equal to raw ignoring case.
func canonicalOf(raw string, vocab []string) (string, bool) {
	s := strings.TrimSpace(raw)
	for _, v := range vocab {
		if strings.EqualFold(s, v) {
			return v, true
		}
	}
	return "", false
}
