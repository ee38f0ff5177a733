package models

import "time"

// ConsolidationPlan names the surviving resource and the duplicates folded into it
type ConsolidationPlan struct {
	KeepID    string   `json:"keep_id" yaml:"keep_id" validate:"required"`
	RemoveIDs []string `json:"remove_ids" yaml:"remove_ids" validate:"required,min=1,dive,required"`
}

// IDs returns keep followed by every remove ID.
func (p ConsolidationPlan) IDs() []string {
	ids := make([]string, 0, len(p.RemoveIDs)+1)
	ids = append(ids, p.KeepID)
	return append(ids, p.RemoveIDs...)
}

type ValidationResult struct {
	SafeToRemove        bool             `json:"safe_to_remove"`
	UniqueChildrenLost  []ChildRecordRef `json:"unique_children_lost"`
	SchemaCoverageDelta int              `json:"schema_coverage_delta"`
	Notes               []string         `json:"notes"`
}

type MigrationResult struct {
	RunID                string   `json:"run_id"`
	KeepID               string   `json:"keep_id"`
	RemovedIDs           []string `json:"removed_ids"`
	SkippedIDs           []string `json:"skipped_ids"`
	ChildRecordsMigrated int      `json:"child_records_migrated"`
	ResourcesRemoved     int      `json:"resources_removed"`
	ChildRecordCount     int      `json:"child_record_count"`
	Forced               bool     `json:"forced"`
	Transactional        bool     `json:"transactional"`
	Errors               []string `json:"errors"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// ScoreBreakdown is one ranked candidate with the contribution of every scoring signal
type ScoreBreakdown struct {
	ResourceID    string  `json:"resource_id"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	ChildRecords  float64 `json:"child_records"`
	Schemas       float64 `json:"schemas"`
	Documentation float64 `json:"documentation"`
	Active        float64 `json:"active"`
	BaseURL       float64 `json:"base_url"`
	CanonicalName float64 `json:"canonical_name"`
}

type Recommendation struct {
	Keep       string           `json:"keep"`
	Remove     []string         `json:"remove"`
	Confidence Confidence       `json:"confidence"`
	Scores     []ScoreBreakdown `json:"scores"`
}

type DuplicateReason string

const (
	DuplicateReasonName    DuplicateReason = "name"
	DuplicateReasonBaseURL DuplicateReason = "base_url"
)

// DuplicateGroup is an ephemeral set of resources that look like the same integration
type DuplicateGroup struct {
	Reason      DuplicateReason `json:"reason"`
	Key         string          `json:"key"`
	ResourceIDs []string        `json:"resource_ids"`
}

type ConsolidationRunStatus string

const (
	ConsolidationRunCompleted ConsolidationRunStatus = "completed"
	ConsolidationRunPartial   ConsolidationRunStatus = "partial"
	ConsolidationRunRejected  ConsolidationRunStatus = "rejected"
	ConsolidationRunFailed    ConsolidationRunStatus = "failed"
)

// ConsolidationRun is the persisted audit row of one execution
type ConsolidationRun struct {
	ID                   string                 `json:"id" db:"id"`
	KeepID               string                 `json:"keep_id" db:"keep_id"`
	RemoveIDs            []string               `json:"remove_ids" db:"-"`
	Forced               bool                   `json:"forced" db:"forced"`
	Status               ConsolidationRunStatus `json:"status" db:"status"`
	ChildRecordsMigrated int                    `json:"child_records_migrated" db:"child_records_migrated"`
	ResourcesRemoved     int                    `json:"resources_removed" db:"resources_removed"`
	Errors               []string               `json:"errors" db:"-"`
	PerformedBy          string                 `json:"performed_by" db:"performed_by"`
	StartedAt            time.Time              `json:"started_at" db:"started_at"`
	FinishedAt           time.Time              `json:"finished_at" db:"finished_at"`
}

// ArchiveSnapshot is the pre-mutation copy of everything a run deletes or repoints
type ArchiveSnapshot struct {
	RunID        string        `json:"run_id"`
	KeepID       string        `json:"keep_id"`
	Resources    []Resource    `json:"resources"`
	ChildRecords []ChildRecord `json:"child_records"`
	TakenAt      time.Time     `json:"taken_at"`
}

// ConsolidatedEvent is published after a run mutates the store
type ConsolidatedEvent struct {
	RunID                string                 `json:"run_id"`
	KeepID               string                 `json:"keep_id"`
	RemovedIDs           []string               `json:"removed_ids"`
	Status               ConsolidationRunStatus `json:"status"`
	ChildRecordsMigrated int                    `json:"child_records_migrated"`
	ResourcesRemoved     int                    `json:"resources_removed"`
	Forced               bool                   `json:"forced"`
	PerformedBy          string                 `json:"performed_by"`
	Timestamp            time.Time              `json:"timestamp"`
}
