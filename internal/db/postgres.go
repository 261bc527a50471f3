package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// PoolConfig sets database/sql pooling limits.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// InitPostgres connects to Postgres through the otelsql-instrumented driver,
// applies pooling limits and runs pending migrations.
func InitPostgres(ctx context.Context, dsn string, pool PoolConfig) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := Migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	zap.L().Info("connected to postgres",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
		zap.Duration("conn_max_lifetime", pool.ConnMaxLifetime))
	return &Postgres{DB: sqlDB}, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

const issueColumns = `i.id, i.reporter_id, COALESCE(u.username, ''), COALESCE(u.email, ''),
    i.title, i.category, i.description, i.location, i.latitude, i.longitude,
    i.status, i.severity,
    i.image_key, i.image_content_type, i.image_size,
    i.video_key, i.video_content_type, i.video_size, i.video_duration,
    COALESCE(i.annotated_image, ''), COALESCE(i.annotated_video, ''),
    i.created_at, i.updated_at`

const issueFrom = ` FROM issue_reports i LEFT JOIN users u ON u.id = i.reporter_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (models.IssueReport, error) {
	var (
		r                          models.IssueReport
		reporterID                 sql.NullInt64
		lat, lng, videoDuration    sql.NullFloat64
		imageKey, imageType        sql.NullString
		videoKey, videoType        sql.NullString
		imageSize, videoSize       sql.NullInt64
		category, status, severity string
	)
	if err := row.Scan(&r.ID, &reporterID, &r.Reporter, &r.ReporterEmail,
		&r.Title, &category, &r.Description, &r.Location, &lat, &lng,
		&status, &severity,
		&imageKey, &imageType, &imageSize,
		&videoKey, &videoType, &videoSize, &videoDuration,
		&r.AnnotatedImage, &r.AnnotatedVideo,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.IssueReport{}, err
	}
	r.Category = models.Category(category)
	r.Status = models.Status(status)
	r.Severity = models.Severity(severity)
	if reporterID.Valid {
		id := reporterID.Int64
		r.ReporterID = &id
	}
	if lat.Valid && lng.Valid {
		la, lo := lat.Float64, lng.Float64
		r.Latitude, r.Longitude = &la, &lo
	}
	if imageKey.Valid && imageKey.String != "" {
		r.Image = &models.MediaRef{Key: imageKey.String, ContentType: imageType.String, Size: imageSize.Int64}
	}
	if videoKey.Valid && videoKey.String != "" {
		r.Video = &models.MediaRef{Key: videoKey.String, ContentType: videoType.String, Size: videoSize.Int64}
		if videoDuration.Valid {
			d := videoDuration.Float64
			r.Video.DurationSeconds = &d
		}
	}
	return r, nil
}

// whereClause renders f as SQL conditions with positional arguments.
func whereClause(f models.IssueFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if f.ReporterID != nil {
		add("i.reporter_id = ?", *f.ReporterID)
	}
	if f.Status != "" {
		add("i.status = ?", string(f.Status))
	}
	if f.Category != "" {
		add("i.category = ?", string(f.Category))
	}
	if f.Severity != "" {
		add("i.severity = ?", string(f.Severity))
	}
	if len(f.Severities) > 0 {
		vals := make([]string, len(f.Severities))
		for i, s := range f.Severities {
			vals[i] = string(s)
		}
		add("i.severity = ANY(?)", pq.Array(vals))
	}
	if len(f.ExcludeStatuses) > 0 {
		vals := make([]string, len(f.ExcludeStatuses))
		for i, s := range f.ExcludeStatuses {
			vals[i] = string(s)
		}
		add("NOT (i.status = ANY(?))", pq.Array(vals))
	}
	if f.Area != "" {
		add("i.location ILIKE ?", "%"+escapeLike(f.Area)+"%")
	}
	if f.Search != "" {
		add(`(i.title ILIKE ? OR i.description ILIKE ? OR i.location ILIKE ?
            OR u.username ILIKE ? OR u.email ILIKE ?)`, "%"+escapeLike(f.Search)+"%")
	}
	if f.DateFrom != nil {
		add("(i.created_at AT TIME ZONE 'UTC')::date >= ?::date", f.DateFrom.Format(models.DateLayout))
	}
	if f.DateTo != nil {
		add("(i.created_at AT TIME ZONE 'UTC')::date <= ?::date", f.DateTo.Format(models.DateLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CreateIssue inserts a new issue report and fills its generated fields.
func (p *Postgres) CreateIssue(ctx context.Context, r *models.IssueReport) error {
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	if r.Severity == "" {
		r.Severity = models.SeverityMedium
	}
	var createdAt any
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO issue_reports (
            reporter_id, title, category, description, location, latitude, longitude,
            status, severity, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10, NOW()),COALESCE($10, NOW()))
            RETURNING id, created_at, updated_at`,
		r.ReporterID, r.Title, string(r.Category), r.Description, r.Location, r.Latitude, r.Longitude,
		string(r.Status), string(r.Severity), createdAt).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

// GetIssue loads a single issue with its reporter.
func (p *Postgres) GetIssue(ctx context.Context, id int64) (models.IssueReport, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+issueColumns+issueFrom+` WHERE i.id = $1`, id)
	r, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.IssueReport{}, models.ErrNotFound
	}
	if err != nil {
		return models.IssueReport{}, fmt.Errorf("get issue: %w", err)
	}
	return r, nil
}

func (p *Postgres) queryIssues(ctx context.Context, query string, args ...any) ([]models.IssueReport, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.IssueReport
	for rows.Next() {
		r, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// ListIssues returns one page of issues matching f, newest first.
func (p *Postgres) ListIssues(ctx context.Context, f models.IssueFilter) (models.Page, error) {
	f = f.Normalize()
	where, args := whereClause(f)

	var total int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*)`+issueFrom+where, args...).Scan(&total); err != nil {
		return models.Page{}, fmt.Errorf("count issues: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY i.created_at DESC, i.id DESC LIMIT $%d OFFSET $%d`,
		issueColumns, issueFrom, where, n+1, n+2)
	items, err := p.queryIssues(ctx, query, append(args, f.PerPage, f.Offset())...)
	if err != nil {
		return models.Page{}, err
	}
	return models.NewPage(items, total, f), nil
}

// AllIssues returns every issue matching f, newest first.
func (p *Postgres) AllIssues(ctx context.Context, f models.IssueFilter) ([]models.IssueReport, error) {
	where, args := whereClause(f)
	return p.queryIssues(ctx, `SELECT `+issueColumns+issueFrom+where+` ORDER BY i.created_at DESC, i.id DESC`, args...)
}

// UpdateIssueStatus changes an issue's status and bumps updated_at.
func (p *Postgres) UpdateIssueStatus(ctx context.Context, id int64, status models.Status) (models.IssueReport, error) {
	if !status.Valid() {
		return models.IssueReport{}, models.ErrInvalidStatus
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE issue_reports SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	if err != nil {
		return models.IssueReport{}, fmt.Errorf("update issue status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.IssueReport{}, models.ErrNotFound
	}
	return p.GetIssue(ctx, id)
}

// AttachMedia records an uploaded file in the image or video slot.
func (p *Postgres) AttachMedia(ctx context.Context, id int64, kind models.MediaKind, ref models.MediaRef, annotated string) error {
	var (
		res sql.Result
		err error
	)
	switch kind {
	case models.MediaImage:
		res, err = p.DB.ExecContext(ctx, `UPDATE issue_reports SET image_key=$1, image_content_type=$2, image_size=$3,
            annotated_image=NULLIF($4, ''), updated_at=NOW() WHERE id=$5`,
			ref.Key, ref.ContentType, ref.Size, annotated, id)
	case models.MediaVideo:
		res, err = p.DB.ExecContext(ctx, `UPDATE issue_reports SET video_key=$1, video_content_type=$2, video_size=$3,
            video_duration=$4, annotated_video=NULLIF($5, ''), updated_at=NOW() WHERE id=$6`,
			ref.Key, ref.ContentType, ref.Size, ref.DurationSeconds, annotated, id)
	default:
		return fmt.Errorf("attach media: unknown kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("attach %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteIssue removes an issue row.
func (p *Postgres) DeleteIssue(ctx context.Context, id int64) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM issue_reports WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountByReporter returns how many issues a user has submitted.
func (p *Postgres) CountByReporter(ctx context.Context, reporterID int64) (int, error) {
	var n int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM issue_reports WHERE reporter_id=$1`, reporterID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count by reporter: %w", err)
	}
	return n, nil
}

// CloseResolvedBefore closes issues that have stayed resolved since before cutoff.
func (p *Postgres) CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := p.DB.ExecContext(ctx, `UPDATE issue_reports SET status=$1, updated_at=NOW()
            WHERE status=$2 AND updated_at < $3`,
		string(models.StatusClosed), string(models.StatusResolved), cutoff)
	if err != nil {
		return 0, fmt.Errorf("close resolved issues: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// uniqueViolation maps a unique constraint failure on users to a sentinel.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "username"):
		return models.ErrDuplicateUsername
	case strings.Contains(pqErr.Constraint, "email"):
		return models.ErrDuplicateEmail
	}
	return nil
}

// CreateUser inserts a new account and returns the generated ID.
func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	err := p.DB.QueryRowContext(ctx, `INSERT INTO users (username, email, password_hash, first_name, last_name, is_staff)
            VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.IsStaff).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, password_hash, first_name, last_name, is_staff, created_at`

func (p *Postgres) getUser(ctx context.Context, where string, arg any) (models.User, error) {
	var u models.User
	err := p.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsStaff, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (models.User, error) {
	return p.getUser(ctx, "id = $1", id)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return p.getUser(ctx, "LOWER(email) = LOWER($1)", email)
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return p.getUser(ctx, "LOWER(username) = LOWER($1)", username)
}

// UpdateUser saves profile fields.
func (p *Postgres) UpdateUser(ctx context.Context, u models.User) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE users SET email=$1, first_name=$2, last_name=$3, password_hash=$4, is_staff=$5 WHERE id=$6`,
		u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff, u.ID)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TopReporters returns users with the most reports.
func (p *Postgres) TopReporters(ctx context.Context, limit int) ([]models.ReporterCount, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT u.id, u.username, u.email, COUNT(i.id) AS n
            FROM issue_reports i JOIN users u ON u.id = i.reporter_id
            GROUP BY u.id, u.username, u.email
            ORDER BY n DESC, u.id ASC
            LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top reporters: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.ReporterCount
	for rows.Next() {
		var rc models.ReporterCount
		if err := rows.Scan(&rc.UserID, &rc.Username, &rc.Email, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan top reporter: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
