// Package load implements the load coordinator: the single writer
// that takes converted documents through chunking, embedding and the
// three stores while keeping them mutually consistent.
package load

import (
	"time"

	"github.com/seongho-dev/ragload/internal/chunk"
)

// Stage names the pipeline step an outcome refers to.
type Stage string

const (
	StageChunk         Stage = "chunk"
	StageDocumentStore Stage = "document_store"
	StageSemantic      Stage = "semantic_index"
	StageLexical       Stage = "lexical_index"
)

// Status classifies a per-chunk outcome.
type Status string

const (
	StatusIndexed      Status = "indexed"
	StatusSkippedEmpty Status = "skipped_empty"
	StatusFailed       Status = "failed"
)

// Outcome is the per-chunk record in a load report. A load never
// aborts on a chunk failure; the failure lands here instead.
type Outcome struct {
	// ChunkID is the chunk identity.
	ChunkID string
	// Kind is parent or child.
	Kind chunk.Kind
	// ParentID is set for children.
	ParentID string
	// Status is the final state of this chunk.
	Status Status
	// Stage is where a failure happened; empty for indexed chunks.
	Stage Stage
	// Code is the error code for failed chunks.
	Code string
	// Reason is the failure description.
	Reason string
}

// Report is the result of loading one document. It always exists,
// even for an empty document that produced no chunks.
type Report struct {
	// SourceID is the loaded document.
	SourceID string
	// Parents is the number of parent chunks produced.
	Parents int
	// Children is the number of child chunks produced.
	Children int
	// Outcomes has one entry per produced chunk.
	Outcomes []Outcome
	// Duration is the wall-clock load time.
	Duration time.Duration
}

// NewReport creates an empty report for a document.
func NewReport(sourceID string) *Report {
	return &Report{SourceID: sourceID}
}

// Record appends an outcome.
func (r *Report) Record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Indexed counts chunks that landed in every store they belong to.
func (r *Report) Indexed() int {
	return r.countStatus(StatusIndexed)
}

// Failed counts chunks with a recorded failure.
func (r *Report) Failed() int {
	return r.countStatus(StatusFailed)
}

// Skipped counts chunks dropped as empty or too short.
func (r *Report) Skipped() int {
	return r.countStatus(StatusSkippedEmpty)
}

func (r *Report) countStatus(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// HasFailures reports whether any chunk failed.
func (r *Report) HasFailures() bool {
	return r.Failed() > 0
}

// FailuresByStage groups failed outcomes by pipeline stage.
func (r *Report) FailuresByStage() map[Stage]int {
	out := make(map[Stage]int)
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out[o.Stage]++
		}
	}
	return out
}
