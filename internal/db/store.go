package db

import (
	"context"
	"time"

	"github.com/patrickwarner/civicreport/internal/models"
)

// IssueStore persists issue reports.
type IssueStore interface {
	// CreateIssue inserts r and fills its ID and timestamps.
	CreateIssue(ctx context.Context, r *models.IssueReport) error
	GetIssue(ctx context.Context, id int64) (models.IssueReport, error)
	// ListIssues returns one page of matching issues, newest first.
	ListIssues(ctx context.Context, f models.IssueFilter) (models.Page, error)
	// AllIssues returns every matching issue, newest first, ignoring pagination.
	AllIssues(ctx context.Context, f models.IssueFilter) ([]models.IssueReport, error)
	UpdateIssueStatus(ctx context.Context, id int64, status models.Status) (models.IssueReport, error)
	// AttachMedia sets the image or video slot and its annotated counterpart.
	AttachMedia(ctx context.Context, id int64, kind models.MediaKind, ref models.MediaRef, annotated string) error
	// DeleteIssue removes an issue. Missing ids return models.ErrNotFound.
	DeleteIssue(ctx context.Context, id int64) error
	CountByReporter(ctx context.Context, reporterID int64) (int, error)
	// CloseResolvedBefore moves issues resolved before cutoff to closed and
	// returns how many changed.
	CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts u and fills its ID. Duplicate usernames or emails
	// return models.ErrDuplicateUsername or models.ErrDuplicateEmail.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	UpdateUser(ctx context.Context, u models.User) error
	// TopReporters ranks users by number of reports.
	TopReporters(ctx context.Context, limit int) ([]models.ReporterCount, error)
}

// Store is the full persistence surface used by the API.
type Store interface {
	IssueStore
	UserStore
}
