// Package models defines core data structures for complaints, embeddings, queries, intents and search results.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Complaint is a civic service request as held by the document store.
type Complaint struct {
	ID              string    `json:"id"`
	ComplaintType   string    `json:"complaint_type"`
	Descriptor      string    `json:"descriptor"`
	Borough         string    `json:"borough"`
	IncidentAddress string    `json:"incident_address,omitempty"`
	City            string    `json:"city,omitempty"`
	Agency          string    `json:"agency,omitempty"`
	AgencyName      string    `json:"agency_name,omitempty"`
	Status          string    `json:"status,omitempty"`
	RiskScore       *float64  `json:"risk_score,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Location joins borough and address for display and field matching.
func (c *Complaint) Location() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Borough, c.IncidentAddress, c.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Organization returns the agency name, falling back to the agency code.
func (c *Complaint) Organization() string {
	if c.AgencyName != "" {
		return c.AgencyName
	}
	return c.Agency
}

// RiskLevel returns the bucket for the complaint's risk score, or "" when unscored.
func (c *Complaint) RiskLevel() RiskLevel {
	if c.RiskScore == nil {
		return ""
	}
	return RiskLevelFor(*c.RiskScore)
}

// Metadata returns the fields the vector retriever filters on, as stored alongside embedding links.
func (c *Complaint) Metadata() map[string]string {
	meta := map[string]string{
		MetaComplaintType: c.ComplaintType,
		MetaBorough:       strings.ToUpper(strings.TrimSpace(c.Borough)),
		MetaStatus:        c.Status,
		MetaAgency:        c.Agency,
	}
	if c.RiskScore != nil {
		meta[MetaRiskScore] = strconv.FormatFloat(*c.RiskScore, 'f', -1, 64)
	}
	if !c.SubmittedAt.IsZero() {
		meta[MetaSubmittedAt] = c.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// Metadata keys written on embedding links.
const (
	MetaComplaintType = "complaint_type"
	MetaBorough       = "borough"
	MetaStatus        = "status"
	MetaAgency        = "agency"
	MetaRiskScore     = "risk_score"
	MetaSubmittedAt   = "submitted_at"
)

// RiskLevel buckets a 0..1 risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevelFor maps a score to its bucket: high >= 0.7, medium [0.4, 0.7), low < 0.4.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Bounds returns the half-open score range [lo, hi) for the bucket. hi is 0 for an unbounded top.
func (r RiskLevel) Bounds() (lo, hi float64) {
	switch r {
	case RiskHigh:
		return 0.7, 0
	case RiskMedium:
		return 0.4, 0.7
	case RiskLow:
		return 0, 0.4
	}
	return 0, 0
}

// ParseRiskLevel validates s. The second result is false for unknown values.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch r := RiskLevel(strings.ToLower(strings.TrimSpace(s))); r {
	case RiskLow, RiskMedium, RiskHigh:
		return r, true
	}
	return "", false
}

// Borough is one of the five New York City boroughs, upper-cased as in 311 data.
type Borough string

const (
	BoroughManhattan    Borough = "MANHATTAN"
	BoroughBrooklyn     Borough = "BROOKLYN"
	BoroughQueens       Borough = "QUEENS"
	BoroughBronx        Borough = "BRONX"
	BoroughStatenIsland Borough = "STATEN ISLAND"
)

// Boroughs lists the known boroughs in lookup order.
var Boroughs = []Borough{BoroughManhattan, BoroughBrooklyn, BoroughQueens, BoroughBronx, BoroughStatenIsland}

// ParseBorough normalizes s ("the bronx", "Staten Island") to a known borough.
func ParseBorough(s string) (Borough, bool) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	s = strings.TrimPrefix(s, "THE ")
	for _, b := range Boroughs {
		if string(b) == s {
			return b, true
		}
	}
	return "", false
}
