package store

import "time"

// FileRecord is a stored file row.
type FileRecord struct {
	Path        string
	Title       string
	FrontMatter map[string]any
	Hash        string
	ETag        string
	Size        int64
	CreatedAt   *time.Time
	ModifiedAt  *time.Time
}

// ChunkRecord is a stored chunk row.
type ChunkRecord struct {
	ID         string
	Path       string
	Heading    string
	Level      int
	StartLine  int
	Text       string
	Hash       string
	Hub        int
	Authority  int
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

// Date returns coalesce(created_at, modified_at) for recency and temporal
// ordering.
func (c *ChunkRecord) Date() *time.Time {
	if c.CreatedAt != nil {
		return c.CreatedAt
	}
	return c.ModifiedAt
}

// DateField selects which time column candidate filters apply to.
type DateField string

const (
	// DateFieldAuto filters on coalesce(created_at, modified_at).
	DateFieldAuto DateField = "auto"
	// DateFieldCreated filters on created_at only.
	DateFieldCreated DateField = "created"
	// DateFieldModified filters on modified_at only.
	DateFieldModified DateField = "modified"
)

// column returns the SQL expression the filter window applies to.
func (f DateField) column() string {
	switch f {
	case DateFieldCreated:
		return "c.created_at"
	case DateFieldModified:
		return "c.modified_at"
	default:
		return "COALESCE(c.created_at, c.modified_at)"
	}
}

// FilterSpec narrows a candidate fetch.
type FilterSpec struct {
	// Tags to match. RequireAll selects AND semantics across tags,
	// otherwise any single match qualifies.
	Tags       []string
	RequireAll bool
	// Since and Until bound the selected date field, half-open [since, until).
	Since *time.Time
	Until *time.Time
	// PathPrefix restricts candidates to paths under the prefix.
	PathPrefix string
}

// IsZero reports whether the filter imposes no constraints.
func (f FilterSpec) IsZero() bool {
	return len(f.Tags) == 0 && f.Since == nil && f.Until == nil && f.PathPrefix == ""
}

// TagCount is one facet row.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TimeBucket is one month of the facet histogram.
type TimeBucket struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// Facets is the aggregate view over the filtered corpus.
type Facets struct {
	TopTags       []TagCount   `json:"top_tags"`
	TimeHistogram []TimeBucket `json:"time_histogram"`
}

// EdgeRecord is a stored semantic link row.
type EdgeRecord struct {
	SourceID     string
	TargetID     string
	Relationship string
	Strength     float64
	Rationale    string
	Provenance   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Edge provenance values.
const (
	ProvenanceAuto   = "AUTO"
	ProvenanceManual = "MANUAL"
)

// PendingLinkRecord is an edge proposal awaiting review.
type PendingLinkRecord struct {
	ID           string
	SourceID     string
	TargetID     string
	Relationship string
	Strength     float64
	Rationale    string
	Status       string
	CreatedAt    time.Time
	DecidedAt    *time.Time
}

// Pending link statuses.
const (
	PendingStatusPending  = "pending"
	PendingStatusApproved = "approved"
	PendingStatusRejected = "rejected"
)

// EntityRecord is a stored entity row.
type EntityRecord struct {
	ID          int64
	Text        string
	Label       string
	Confidence  float64
	Description string
}

// MentionRecord ties an entity occurrence to a chunk.
type MentionRecord struct {
	ChunkID    string
	EntityID   int64
	StartPos   int
	EndPos     int
	Confidence float64
}

// EntityMention is a mention joined with its entity for lookups.
type EntityMention struct {
	ChunkID    string
	Text       string
	Label      string
	Confidence float64
}

// EmbeddingRecord is a persisted chunk vector plus its metadata sidecar.
type EmbeddingRecord struct {
	ChunkID    string
	Vector     []float32
	Dimensions int
	Metadata   map[string]any
}

// WorkflowRecord is a persisted workflow row.
type WorkflowRecord struct {
	ID          string
	Name        string
	Description string
	Status      string
	CreatedBy   string
	CurrentStep string
	Context     map[string]any
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// StepRecord is a persisted workflow step row.
type StepRecord struct {
	ID           string
	WorkflowID   string
	Name         string
	Action       string
	Params       map[string]any
	Deps         []string
	TimeoutSecs  float64
	RetryCount   int
	RetryDelay   float64
	Status       string
	Result       map[string]any
	Error        string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
