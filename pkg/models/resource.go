package models

import (
	"strings"
	"time"
)

// ResourceStatus is the lifecycle state of a registered resource
type ResourceStatus string

const (
	ResourceStatusDraft      ResourceStatus = "draft"
	ResourceStatusActive     ResourceStatus = "active"
	ResourceStatusDeprecated ResourceStatus = "deprecated"
)

// Resource is a registered integration (for example an API registration) that owns child records
type Resource struct {
	ID               string         `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	Status           ResourceStatus `json:"status" db:"status"`
	BaseURL          *string        `json:"base_url,omitempty" db:"base_url"`
	DocumentationURL *string        `json:"documentation_url,omitempty" db:"documentation_url"`
	ChildRecordCount int            `json:"child_record_count" db:"child_record_count"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

func (r Resource) HasBaseURL() bool {
	return r.BaseURL != nil && strings.TrimSpace(*r.BaseURL) != ""
}

func (r Resource) HasDocumentationURL() bool {
	return r.DocumentationURL != nil && strings.TrimSpace(*r.DocumentationURL) != ""
}

// ChildRecord is an endpoint owned by a Resource
type ChildRecord struct {
	ID             string    `json:"id" db:"id"`
	ParentID       string    `json:"parent_id" db:"parent_id"`
	Method         string    `json:"method" db:"method"`
	Path           string    `json:"path" db:"path"`
	RequestSchema  *string   `json:"request_schema,omitempty" db:"request_schema"`
	ResponseSchema *string   `json:"response_schema,omitempty" db:"response_schema"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ChildKey identifies a child record for duplicate detection
type ChildKey struct {
	Method string
	Path   string
}

// Key returns the (method, path) identity. The method is case-insensitive, the path is byte-exact.
func (c ChildRecord) Key() ChildKey {
	return ChildKey{Method: strings.ToUpper(c.Method), Path: c.Path}
}

func (c ChildRecord) HasSchema() bool {
	return nonEmpty(c.RequestSchema) || nonEmpty(c.ResponseSchema)
}

func (c ChildRecord) Ref() ChildRecordRef {
	return ChildRecordRef{ID: c.ID, ParentID: c.ParentID, Method: c.Method, Path: c.Path}
}

// ChildRecordRef is the lightweight reference reported by validation
type ChildRecordRef struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Method   string `json:"method"`
	Path     string `json:"path"`
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
