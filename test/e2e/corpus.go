// Package e2e provides end-to-end tests with a generated complaint corpus and multiple queries.
package e2e

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/civicrag/internal/models"
)

// QueryTestCase defines a query and the complaint ID(s) that must appear in search results.
// At least one of ExpectedIDs must be present in the ranked results.
type QueryTestCase struct {
	Query       string
	Filters     models.Filters
	ExpectedIDs []string
	Description string
}

// Corpus holds complaints and query test cases for E2E tests.
type Corpus struct {
	Complaints   []*models.Complaint
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// corpusEpoch anchors submitted_at so date filters and ordering are reproducible.
var corpusEpoch = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// topics pairs a complaint type with a descriptor whose words appear in no other topic,
// so a descriptor query has a known answer.
var topics = []struct {
	complaintType string
	descriptor    string
	agency        string
}{
	{"Noise - Residential", "Loud Music Party", "NYPD"},
	{"Noise - Street/Sidewalk", "Shouting Crowd", "NYPD"},
	{"Noise", "Jackhammering Construction", "DEP"},
	{"Noise - Helicopter", "Helicopter Hovering", "EDC"},
	{"Noise - Vehicle", "Engine Idling", "NYPD"},
	{"HEAT/HOT WATER", "Entire Building Heat Outage", "HPD"},
	{"Water System", "Hydrant Running Full", "DEP"},
	{"Water Leak", "Ceiling Dripping", "HPD"},
	{"Water Quality", "Cloudy Brown Tap", "DEP"},
	{"Sewer", "Catch Basin Clogged", "DEP"},
	{"Street Condition", "Pothole", "DOT"},
	{"Street Light Condition", "Lamp Post Dark", "DOT"},
	{"Traffic Signal Condition", "Controller Malfunction", "DOT"},
	{"Blocked Driveway", "Driveway Obstructed", "NYPD"},
	{"Illegal Parking", "Double Parked", "NYPD"},
	{"Derelict Vehicle", "Abandoned Car Plates Removed", "DSNY"},
	{"Rodent", "Rat Sighting", "DOHMH"},
	{"Food Poisoning", "Restaurant Diarrhea Vomiting", "DOHMH"},
	{"Unsanitary Condition", "Cockroaches Pests", "HPD"},
	{"Dirty Conditions", "Overflowing Litter Basket", "DSNY"},
	{"Missed Collection", "Recycling Skipped", "DSNY"},
	{"Graffiti", "Spray Painted Storefront", "DSNY"},
	{"Damaged Tree", "Fallen Branch", "DPR"},
	{"Elevator", "Elevator Stuck", "DOB"},
	{"Building Construction", "Scaffolding Unsafe", "DOB"},
	{"Animal Abuse", "Dog Chained Outside", "NYPD"},
	{"Homeless Person Assistance", "Sleeping Subway Entrance", "DHS"},
	{"Taxi Complaint", "Driver Refused Fare", "TLC"},
	{"Air Quality", "Smoke Odor Chimney", "DEP"},
	{"Plumbing", "Toilet Broken", "HPD"},
	{"Paint/Plaster", "Peeling Lead", "HPD"},
	{"Electric", "Outlet Sparking Wiring", "HPD"},
	{"Snow", "Icy Unshoveled Sidewalk", "DSNY"},
	{"Mold", "Mildew Bedroom Wall", "HPD"},
	{"Broken Parking Meter", "Meter Coin Jammed", "DOT"},
	{"Bus Stop Shelter", "Shelter Glass Shattered", "DOT"},
	{"Consumer Complaint", "Overcharged Receipt", "DCWP"},
	{"Lost Property", "Wallet Left Cab", "TLC"},
	{"Drinking", "Underage Alcohol", "NYPD"},
	{"Fireworks", "Firecrackers Exploding", "NYPD"},
}

// BuildCorpus returns a corpus of 100 complaints spread evenly over the five boroughs.
func BuildCorpus() *Corpus {
	complaints := buildComplaints(100)
	cases := buildQueryTestCases(complaints)
	return &Corpus{
		Complaints:   complaints,
		TestCases:    cases,
		TotalDocs:    len(complaints),
		TotalQueries: len(cases),
	}
}

func buildComplaints(n int) []*models.Complaint {
	statuses := []string{"Open", "Closed", "In Progress", "Closed"}
	out := make([]*models.Complaint, 0, n)
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		risk := float64(i%10) / 10
		out = append(out, &models.Complaint{
			ID:              fmt.Sprintf("e2e-c-%03d", i+1),
			ComplaintType:   t.complaintType,
			Descriptor:      t.descriptor,
			Borough:         string(models.Boroughs[i%len(models.Boroughs)]),
			IncidentAddress: fmt.Sprintf("%d Main Street", 100+i),
			Agency:          t.agency,
			Status:          statuses[i%len(statuses)],
			RiskScore:       &risk,
			SubmittedAt:     corpusEpoch.Add(-time.Duration(i) * time.Hour),
		})
	}
	return out
}

func buildQueryTestCases(complaints []*models.Complaint) []QueryTestCase {
	if len(complaints) == 0 {
		return nil
	}
	var cases []QueryTestCase
	for _, t := range topics {
		var ids []string
		var first *models.Complaint
		for _, c := range complaints {
			if containsPhrase(c, t.descriptor) {
				ids = append(ids, c.ID)
				if first == nil {
					first = c
				}
			}
		}
		if len(ids) == 0 {
			continue
		}
		query := strings.ToLower(t.descriptor)
		cases = append(cases, QueryTestCase{
			Query:       query,
			ExpectedIDs: ids,
			Description: fmt.Sprintf("query %q should return one of %d complaints", query, len(ids)),
		})
		borough, _ := models.ParseBorough(first.Borough)
		cases = append(cases, QueryTestCase{
			Query:       query,
			Filters:     models.Filters{Borough: borough},
			ExpectedIDs: []string{first.ID},
			Description: fmt.Sprintf("query %q in %s should return %s", query, borough, first.ID),
		})
	}
	return cases
}

func containsPhrase(c *models.Complaint, phrase string) bool {
	phrase = strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(c.ComplaintType), phrase) ||
		strings.Contains(strings.ToLower(c.Descriptor), phrase)
}
