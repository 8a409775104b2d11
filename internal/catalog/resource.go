package catalog

import "time"

// ResourceType is the kind of content a resource row represents.
type ResourceType string

const (
	TypeFile   ResourceType = "file"
	TypeFolder ResourceType = "folder"
	TypeLink   ResourceType = "link"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case TypeFile, TypeFolder, TypeLink:
		return true
	}
	return false
}

// Classification holds the categorization derived from the leading path
// segments. Trailing fields are empty when the path is shorter than the
// canonical layout.
type Classification struct {
	Department    string `json:"department"`
	SubDepartment string `json:"sub_department"`
	Bucket        string `json:"bucket"`
	TrainingType  string `json:"training_type"`
}

// Candidate is one raw entry produced by a source walk, before identity
// derivation.
type Candidate struct {
	Type ResourceType
	// Path is relative to the content root. For links it is the path of the
	// link file the URL was read from.
	Path          string
	URL           string
	ContentsCount int
	IsPlaceholder bool
}

// Identity is the deterministic result of deriving a candidate.
type Identity struct {
	Key  string
	Type ResourceType
	Path string
	Name string
	URL  string
	Classification
}

// Observation is what the upsert step writes: an identity seen during a
// sync pass plus the per-pass descriptive fields.
type Observation struct {
	Identity
	Count         int
	ContentsCount int
	IsPlaceholder bool
	Source        string
}

// Review is the human-entered scrub decision attached to a resource.
type Review struct {
	Status    ScrubStatus `json:"status"`
	Reason    ScrubReason `json:"reason,omitempty"`
	Owner     string      `json:"owner,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitzero"`
}

// Investment is the human-entered investment decision attached to a resource.
type Investment struct {
	Decision  InvestDecision `json:"decision,omitempty"`
	Owner     string         `json:"owner,omitempty"`
	Effort    string         `json:"effort,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitzero"`
}

// Resource is one persisted, countable unit of training content.
type Resource struct {
	Key  string       `json:"key"`
	Type ResourceType `json:"type"`
	Path string       `json:"path"`
	Name string       `json:"name"`
	URL  string       `json:"url,omitempty"`
	Classification
	Count         int        `json:"count"`
	ContentsCount int        `json:"contents_count"`
	Source        string     `json:"source"`
	IsPlaceholder bool       `json:"is_placeholder"`
	IsArchived    bool       `json:"is_archived"`
	Review        Review     `json:"review"`
	Investment    Investment `json:"investment"`
	Audience      string     `json:"audience,omitempty"`
	SalesStage    string     `json:"sales_stage,omitempty"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
}

// Outcome is the result of reconciling one observation against stored state.
type Outcome int

const (
	// OutcomeUnchanged means the row was active and only its watermark moved.
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeReactivated
	// OutcomeRefreshed means the row was active and a descriptive field changed.
	OutcomeRefreshed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeReactivated:
		return "reactivated"
	case OutcomeRefreshed:
		return "refreshed"
	default:
		return "unchanged"
	}
}

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunDone   RunStatus = "done"
	RunFailed RunStatus = "failed"
)

// SyncRun is the append-only audit record of one sync execution.
type SyncRun struct {
	ID           int64     `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	SourceKind   string    `json:"source_kind"`
	Locator      string    `json:"locator"`
	Status       RunStatus `json:"status"`
	ActiveBefore int       `json:"active_before"`
	ActiveAfter  int       `json:"active_after"`
	Added        int       `json:"added"`
	Reactivated  int       `json:"reactivated"`
	Refreshed    int       `json:"refreshed"`
	Unchanged    int       `json:"unchanged"`
	Archived     int       `json:"archived"`
	Warnings     int       `json:"warnings"`
	Notes        string    `json:"notes,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
