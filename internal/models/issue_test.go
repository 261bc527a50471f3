package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReport() IssueReport {
	return IssueReport{
		Title:       "Pothole on Main Road",
		Category:    CategoryPothole,
		Description: "Deep hole",
		Location:    "Cape Town, Western Cape",
	}
}

func TestIssueReportValidate(t *testing.T) {
	require.NoError(t, validReport().Validate())

	missing := validReport()
	missing.Description = "  "
	err := missing.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "All fields are required.", ve.Message)

	long := validReport()
	long.Title = strings.Repeat("a", MaxTitleLength+1)
	require.ErrorAs(t, long.Validate(), &ve)
	assert.Equal(t, "title", ve.Field)

	badCat := validReport()
	badCat.Category = "graffiti"
	require.ErrorAs(t, badCat.Validate(), &ve)
	assert.Equal(t, "category", ve.Field)

	lat := 10.0
	half := validReport()
	half.Latitude = &lat
	require.ErrorAs(t, half.Validate(), &ve)

	lng := 200.0
	out := validReport()
	out.Latitude, out.Longitude = &lat, &lng
	require.ErrorAs(t, out.Validate(), &ve)
	assert.Equal(t, "Invalid coordinates.", ve.Message)
}

func TestChoicesDisplay(t *testing.T) {
	assert.Equal(t, "Faulty streetlight", CategoryStreetlight.Display())
	assert.Equal(t, "Pending Review", StatusPending.Display())
	assert.Equal(t, "Critical", SeverityCritical.Display())
	assert.Equal(t, "unknown", Status("unknown").Display())

	assert.True(t, StatusInProgress.Active())
	assert.False(t, StatusResolved.Active())
	assert.False(t, StatusClosed.Active())

	r := validReport()
	assert.Equal(t, "Pothole on Main Road (Pothole)", r.String())
}

func TestParseEnums(t *testing.T) {
	s, err := ParseStatus(" resolved ")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, s)

	_, err = ParseStatus("done")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	_, err = ParseCategory("")
	assert.True(t, errors.Is(err, ErrInvalidCategory))
	_, err = ParseSeverity("extreme")
	assert.True(t, errors.Is(err, ErrInvalidSeverity))
}

func TestHasMedia(t *testing.T) {
	r := validReport()
	assert.False(t, r.HasMedia())
	r.Video = &MediaRef{Key: "issues/videos/a.mp4"}
	assert.True(t, r.HasMedia())
}

func TestFilterMatches(t *testing.T) {
	uid := int64(7)
	r := validReport()
	r.ReporterID = &uid
	r.Reporter = "thandi"
	r.ReporterEmail = "thandi@example.com"
	r.Status = StatusPending
	r.Severity = SeverityHigh
	r.CreatedAt = time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		f    IssueFilter
		want bool
	}{
		{"empty", IssueFilter{}, true},
		{"reporter", IssueFilter{ReporterID: &uid}, true},
		{"status mismatch", IssueFilter{Status: StatusClosed}, false},
		{"search email", IssueFilter{Search: "THANDI@"}, true},
		{"search miss", IssueFilter{Search: "durban"}, false},
		{"area", IssueFilter{Area: "cape town"}, true},
		{"severities", IssueFilter{Severities: []Severity{SeverityCritical}}, false},
		{"exclude", IssueFilter{ExcludeStatuses: []Status{StatusPending}}, false},
		{"date inclusive", IssueFilter{DateFrom: ParseDay("2025-03-10"), DateTo: ParseDay("2025-03-10")}, true},
		{"date after", IssueFilter{DateFrom: ParseDay("2025-03-11")}, false},
		{"bad date ignored", IssueFilter{DateFrom: ParseDay("not-a-date")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.f.Matches(r))
		})
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage(nil, 45, IssueFilter{Page: 2})
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, DefaultPerPage, p.PerPage)
	assert.True(t, p.HasPrevious)
	assert.True(t, p.HasNext)
	assert.NotNil(t, p.Items)

	last := NewPage(nil, 45, IssueFilter{Page: 3})
	assert.False(t, last.HasNext)

	assert.Equal(t, 0, IssueFilter{Page: -4}.Offset())
	assert.Equal(t, 40, IssueFilter{Page: 3}.Offset())
}
