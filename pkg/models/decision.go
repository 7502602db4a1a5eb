package models

import (
	"time"
)

// ImpactLevel grades how far a decision's consequences reach.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// ImpactLevels lists every valid impact level.
var ImpactLevels = []ImpactLevel{ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical}

// Valid reports whether l is a known impact level.
func (l ImpactLevel) Valid() bool {
	for _, known := range ImpactLevels {
		if l == known {
			return true
		}
	}
	return false
}

// DecisionStatus tracks a decision through its lifecycle.
type DecisionStatus string

const (
	DecisionActive      DecisionStatus = "active"
	DecisionDeprecated  DecisionStatus = "deprecated"
	DecisionSuperseded  DecisionStatus = "superseded"
	DecisionUnderReview DecisionStatus = "under_review"
)

// DecisionStatuses lists every valid decision status.
var DecisionStatuses = []DecisionStatus{
	DecisionActive,
	DecisionDeprecated,
	DecisionSuperseded,
	DecisionUnderReview,
}

// Valid reports whether s is a known decision status.
func (s DecisionStatus) Valid() bool {
	for _, known := range DecisionStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// DecisionTypes lists the domain categories a decision may record.
var DecisionTypes = []string{
	"architecture",
	"library",
	"framework",
	"pattern",
	"api_design",
	"database",
	"infrastructure",
	"security",
	"performance",
	"testing",
	"deployment",
	"monitoring",
	"tooling",
	"process",
	"naming",
}

// ValidDecisionType reports whether t is a known decision type.
func ValidDecisionType(t string) bool {
	for _, known := range DecisionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Decision records one architectural choice. A superseded decision must
// reference the decision that replaced it.
type Decision struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	SessionID        string         `json:"session_id,omitempty"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	ProblemStatement string         `json:"problem_statement,omitempty"`
	Rationale        string         `json:"rationale"`
	Alternatives     []string       `json:"alternatives_considered,omitempty"`
	ImpactLevel      ImpactLevel    `json:"impact_level"`
	Type             string         `json:"decision_type"`
	Status           DecisionStatus `json:"status"`
	SupersededBy     string         `json:"superseded_by,omitempty"`
	Outcome          string         `json:"outcome,omitempty"`
	Lessons          string         `json:"lessons,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DecisionStats summarizes a project's decisions.
type DecisionStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByImpact map[string]int `json:"by_impact"`
}
