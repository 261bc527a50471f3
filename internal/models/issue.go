package models

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies the kind of civic problem being reported.
type Category string

// Report categories, in the order they are presented to citizens.
const (
	CategoryPothole     Category = "pothole"
	CategoryWaste       Category = "waste"
	CategoryStreetlight Category = "streetlight"
	CategoryWater       Category = "water"
	CategoryOther       Category = "other"
)

// Status tracks an issue through the municipal workflow.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Severity rates how dangerous an issue is. It is assigned by the hazard
// detector when media is attached and defaults to medium otherwise.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Choice pairs a stored value with its human readable label.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CategoryChoices lists every category with its display name.
var CategoryChoices = []Choice{
	{string(CategoryPothole), "Pothole"},
	{string(CategoryWaste), "Waste management"},
	{string(CategoryStreetlight), "Faulty streetlight"},
	{string(CategoryWater), "Water and sanitation"},
	{string(CategoryOther), "Other"},
}

// StatusChoices lists every status with its display name.
var StatusChoices = []Choice{
	{string(StatusPending), "Pending Review"},
	{string(StatusInProgress), "In Progress"},
	{string(StatusResolved), "Resolved"},
	{string(StatusClosed), "Closed"},
}

// SeverityChoices lists every severity with its display name.
var SeverityChoices = []Choice{
	{string(SeverityLow), "Low"},
	{string(SeverityMedium), "Medium"},
	{string(SeverityHigh), "High"},
	{string(SeverityCritical), "Critical"},
}

func label(choices []Choice, v string) string {
	for _, c := range choices {
		if c.Value == v {
			return c.Label
		}
	}
	return v
}

func valid(choices []Choice, v string) bool {
	for _, c := range choices {
		if c.Value == v {
			return true
		}
	}
	return false
}

// Display returns the category's human readable name.
func (c Category) Display() string { return label(CategoryChoices, string(c)) }

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return valid(CategoryChoices, string(c)) }

// Display returns the status's human readable name.
func (s Status) Display() string { return label(StatusChoices, string(s)) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return valid(StatusChoices, string(s)) }

// Active reports whether the issue still needs attention.
func (s Status) Active() bool { return s != StatusResolved && s != StatusClosed }

// Display returns the severity's human readable name.
func (s Severity) Display() string { return label(SeverityChoices, string(s)) }

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return valid(SeverityChoices, string(s)) }

// ParseCategory validates a raw category value.
func ParseCategory(v string) (Category, error) {
	c := Category(strings.TrimSpace(v))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, v)
	}
	return c, nil
}

// ParseStatus validates a raw status value.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.TrimSpace(v))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// ParseSeverity validates a raw severity value.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.TrimSpace(v))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, v)
	}
	return s, nil
}

// MediaKind distinguishes the two attachment slots on a report.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaRef points at an uploaded file in media storage.
type MediaRef struct {
	Key             string   `json:"key"`
	ContentType     string   `json:"content_type"`
	Size            int64    `json:"size"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// Field length limits enforced before anything is persisted.
const (
	MaxTitleLength    = 200
	MaxLocationLength = 255
)

// IssueReport is a citizen-submitted civic issue. Image and video are both
// optional and may be attached together.
type IssueReport struct {
	ID             int64     `json:"id"`
	ReporterID     *int64    `json:"reporter_id,omitempty"`
	Reporter       string    `json:"reporter,omitempty"` // username, filled on reads
	ReporterEmail  string    `json:"-"`
	Title          string    `json:"title"`
	Category       Category  `json:"category"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Status         Status    `json:"status"`
	Severity       Severity  `json:"severity"`
	Image          *MediaRef `json:"image,omitempty"`
	Video          *MediaRef `json:"video,omitempty"`
	AnnotatedImage string    `json:"annotated_image,omitempty"`
	AnnotatedVideo string    `json:"annotated_video,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasMedia reports whether an image or video is attached.
func (r IssueReport) HasMedia() bool { return r.Image != nil || r.Video != nil }

// String renders the report the way staff lists show it.
func (r IssueReport) String() string {
	return fmt.Sprintf("%s (%s)", r.Title, r.Category.Display())
}

// Validate checks the user supplied fields of a new report. Missing fields
// are reported together, matching the form's single error banner.
func (r IssueReport) Validate() error {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(string(r.Category)) == "" ||
		strings.TrimSpace(r.Description) == "" || strings.TrimSpace(r.Location) == "" {
		return &ValidationError{Message: "All fields are required."}
	}
	if len(r.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("Title must be at most %d characters.", MaxTitleLength)}
	}
	if len(r.Location) > MaxLocationLength {
		return &ValidationError{Field: "location", Message: fmt.Sprintf("Location must be at most %d characters.", MaxLocationLength)}
	}
	if !r.Category.Valid() {
		return &ValidationError{Field: "category", Message: "Invalid category."}
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return &ValidationError{Field: "latitude", Message: "Latitude and longitude must be provided together."}
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90 || *r.Longitude < -180 || *r.Longitude > 180) {
		return &ValidationError{Field: "latitude", Message: "Invalid coordinates."}
	}
	return nil
}
