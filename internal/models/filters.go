package models

import (
	"strconv"
	"strings"
	"time"
)

// Filters are hard constraints applied before scoring. Zero fields are unset; set fields combine with AND.
type Filters struct {
	ComplaintType string       `json:"complaint_type,omitempty"`
	Borough       Borough      `json:"borough,omitempty"`
	Status        string       `json:"status,omitempty"`
	Agency        string       `json:"agency,omitempty"`
	From          *time.Time   `json:"from,omitempty"`
	To            *time.Time   `json:"to,omitempty"`
	RiskLevel     RiskLevel    `json:"risk_level,omitempty"`
	DocumentType  DocumentType `json:"document_type,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.ComplaintType == "" && f.Borough == "" && f.Status == "" && f.Agency == "" &&
		f.From == nil && f.To == nil && f.RiskLevel == "" && f.DocumentType == ""
}

// Matches applies the filters to link metadata (see Complaint.Metadata).
// A filter on a key the metadata lacks does not match.
func (f Filters) Matches(meta map[string]string) bool {
	if f.ComplaintType != "" && !containsFold(meta[MetaComplaintType], f.ComplaintType) {
		return false
	}
	if f.Borough != "" && !strings.EqualFold(meta[MetaBorough], string(f.Borough)) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(meta[MetaStatus], f.Status) {
		return false
	}
	if f.Agency != "" && !strings.EqualFold(meta[MetaAgency], f.Agency) {
		return false
	}
	if f.From != nil || f.To != nil {
		at, err := time.Parse(time.RFC3339, meta[MetaSubmittedAt])
		if err != nil {
			return false
		}
		if f.From != nil && at.Before(*f.From) {
			return false
		}
		if f.To != nil && !at.Before(*f.To) {
			return false
		}
	}
	if f.RiskLevel != "" {
		score, err := strconv.ParseFloat(meta[MetaRiskScore], 64)
		if err != nil || RiskLevelFor(score) != f.RiskLevel {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
