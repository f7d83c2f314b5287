package models

import (
	"strings"
	"time"
)

// IntentKind is the classified purpose of a question.
type IntentKind string

const (
	IntentStatisticalAnalysis IntentKind = "statistical_analysis"
	IntentSearchComplaints    IntentKind = "search_complaints"
	IntentGeneralConversation IntentKind = "general_conversation"
)

// ParseIntentKind validates s. The second result is false for unknown intents.
func ParseIntentKind(s string) (IntentKind, bool) {
	switch k := IntentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case IntentStatisticalAnalysis, IntentSearchComplaints, IntentGeneralConversation:
		return k, true
	}
	return "", false
}

// IntentSource records which classifier path produced an intent.
type IntentSource string

const (
	IntentSourceLLM   IntentSource = "llm"
	IntentSourceRules IntentSource = "rules"
)

// TimeFilter is a relative time window.
type TimeFilter string

const (
	TimeToday     TimeFilter = "today"
	TimeYesterday TimeFilter = "yesterday"
	TimeWeek      TimeFilter = "week"
	TimeMonth     TimeFilter = "month"
	TimeYear      TimeFilter = "year"
)

// ParseTimeFilter validates s.
func ParseTimeFilter(s string) (TimeFilter, bool) {
	switch t := TimeFilter(strings.ToLower(strings.TrimSpace(s))); t {
	case TimeToday, TimeYesterday, TimeWeek, TimeMonth, TimeYear:
		return t, true
	}
	return "", false
}

// Range returns the window relative to now. to is nil when the window is open-ended.
func (t TimeFilter) Range(now time.Time) (from, to *time.Time) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var start time.Time
	switch t {
	case TimeToday:
		start = startOfDay
	case TimeYesterday:
		start = startOfDay.AddDate(0, 0, -1)
		end := startOfDay
		return &start, &end
	case TimeWeek:
		start = now.AddDate(0, 0, -7)
	case TimeMonth:
		start = now.AddDate(0, -1, 0)
	case TimeYear:
		start = now.AddDate(-1, 0, 0)
	default:
		return nil, nil
	}
	return &start, nil
}

// GroupBy is the dimension statistical answers are grouped on.
type GroupBy string

const (
	GroupByBorough       GroupBy = "borough"
	GroupByComplaintType GroupBy = "complaint_type"
	GroupByAgency        GroupBy = "agency"
	GroupByStatus        GroupBy = "status"
	GroupByMonth         GroupBy = "month"
)

// ParseGroupBy validates s.
func ParseGroupBy(s string) (GroupBy, bool) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupByBorough, GroupByComplaintType, GroupByAgency, GroupByStatus, GroupByMonth:
		return g, true
	}
	return "", false
}

// IntentParameters are the structured retrieval parameters extracted from a question.
// The zero value of each field means "not mentioned".
type IntentParameters struct {
	ComplaintType string     `json:"complaint_type,omitempty"`
	Borough       Borough    `json:"borough,omitempty"`
	RiskLevel     RiskLevel  `json:"risk_level,omitempty"`
	TimeFilter    TimeFilter `json:"time_filter,omitempty"`
	GroupBy       GroupBy    `json:"group_by,omitempty"`
}

// Filters converts the parameters into retrieval filters relative to now.
func (p IntentParameters) Filters(now time.Time) Filters {
	f := Filters{
		ComplaintType: p.ComplaintType,
		Borough:       p.Borough,
		RiskLevel:     p.RiskLevel,
	}
	f.From, f.To = p.TimeFilter.Range(now)
	return f
}

// QueryIntent is the classifier's answer for one question.
type QueryIntent struct {
	Kind       IntentKind       `json:"intent"`
	Parameters IntentParameters `json:"parameters"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning,omitempty"`
	Source     IntentSource     `json:"source"`
}
