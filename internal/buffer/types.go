// Package buffer persists CCPM buffers and reports how much of each has
// been consumed.
//
// Buffers are append-only: regeneration archives the ACTIVE set of a
// project and inserts a fresh one. Nothing is ever deleted.
package buffer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/joshharrison/chainloom/internal/chain"
)

var (
	// ErrNotFound is returned when a buffer does not exist.
	ErrNotFound = errors.New("buffer not found")
	// ErrArchived is returned when mutating an archived buffer.
	ErrArchived = errors.New("buffer is archived")
	// ErrInvalidConsumption is returned for a negative consumed value.
	ErrInvalidConsumption = errors.New("consumed minutes must not be negative")
	// ErrNilSnapshot is returned when regeneration is given no snapshot.
	ErrNilSnapshot = errors.New("snapshot is nil")
)

// Type distinguishes the project buffer from feeding buffers.
type Type string

const (
	TypeProject Type = "PROJECT"
	TypeFeeding Type = "FEEDING"
)

// Status is the lifecycle state of a buffer.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Zone is the consumption band of a buffer.
type Zone string

const (
	ZoneGreen  Zone = "GREEN"
	ZoneYellow Zone = "YELLOW"
	ZoneRed    Zone = "RED"
)

// Buffer is a block of protective time owned by one project.
type Buffer struct {
	ID              string `json:"id" yaml:"id"`
	ProjectID       string `json:"projectId" yaml:"projectId"`
	Type            Type   `json:"type" yaml:"type"`
	SizeMinutes     int    `json:"sizeMinutes" yaml:"sizeMinutes"`
	ConsumedMinutes int    `json:"consumedMinutes" yaml:"consumedMinutes"`
	Status          Status `json:"status" yaml:"status"`

	// MergeTaskID and ChainTaskIDs are set for FEEDING buffers only.
	MergeTaskID  string   `json:"mergeTaskId,omitempty" yaml:"mergeTaskId,omitempty"`
	ChainTaskIDs []string `json:"chainTaskIds,omitempty" yaml:"chainTaskIds,omitempty"`

	// Position orders buffers created by the same regeneration: the
	// project buffer first, then feeding buffers in analysis order.
	Position int `json:"position" yaml:"position"`

	CreatedAt  time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" yaml:"updatedAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty" yaml:"archivedAt,omitempty"`
}

// ZonePolicy holds the consumption thresholds of the zones. A ratio at or
// below GreenMax is GREEN, at or below YellowMax is YELLOW, else RED.
type ZonePolicy struct {
	GreenMax  float64
	YellowMax float64
}

// DefaultZonePolicy returns the 0.33 / 0.66 thresholds.
func DefaultZonePolicy() ZonePolicy {
	return ZonePolicy{GreenMax: 0.33, YellowMax: 0.66}
}

// Validate checks that 0 <= GreenMax <= YellowMax.
func (z ZonePolicy) Validate() error {
	if z.GreenMax < 0 || z.YellowMax < z.GreenMax {
		return fmt.Errorf("zone thresholds must satisfy 0 <= green (%v) <= yellow (%v)", z.GreenMax, z.YellowMax)
	}
	return nil
}

// Classify returns the rounded consumption percentage and zone for a
// buffer. A zero-size buffer reports 0% and GREEN.
func (z ZonePolicy) Classify(consumed, size int) (int, Zone) {
	if size <= 0 {
		return 0, ZoneGreen
	}
	ratio := float64(consumed) / float64(size)
	percent := int(math.Round(100 * ratio))
	switch {
	case ratio <= z.GreenMax:
		return percent, ZoneGreen
	case ratio <= z.YellowMax:
		return percent, ZoneYellow
	default:
		return percent, ZoneRed
	}
}

// BufferStatus is a buffer with its read-time consumption figures.
type BufferStatus struct {
	Buffer             `yaml:",inline"`
	ConsumptionPercent int  `json:"consumptionPercent" yaml:"consumptionPercent"`
	Zone               Zone `json:"zone" yaml:"zone"`
}

// RegenerateResult is what one regeneration produced.
type RegenerateResult struct {
	ProjectID string
	BufferIDs []string
	Buffers   []Buffer
	Archived  []Buffer
	Analysis  *chain.Analysis
}
