package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/observability"
)

const createEventsTable = `CREATE TABLE IF NOT EXISTS issue_events (
    timestamp       DateTime,
    event_type      LowCardinality(String),
    issue_id        Int64,
    user_id         Int64,
    category        LowCardinality(String),
    status          LowCardinality(String),
    previous_status LowCardinality(String),
    severity        LowCardinality(String),
    media_kind      LowCardinality(String),
    seconds         Float64,
    device_type     LowCardinality(String),
    os              String,
    browser         String,
    is_bot          UInt8,
    country         LowCardinality(String),
    region          String
) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

// ClickHouse writes events to a ClickHouse database.
type ClickHouse struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// InitClickHouse connects and ensures the issue_events table exists.
func InitClickHouse(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouse, error) {
	conn, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	conn.SetMaxOpenConns(10)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, createEventsTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	logger.Info("Connected to ClickHouse")
	return &ClickHouse{DB: conn, Logger: logger}, nil
}

// RecordEvent inserts ev. A zero timestamp is replaced with the current time.
func (c *ClickHouse) RecordEvent(ctx context.Context, ev Event) error {
	if c == nil || c.DB == nil {
		return ErrUnavailable
	}
	ctx, span := observability.Tracer("analytics").Start(ctx, "analytics.RecordEvent")
	defer span.End()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	var bot uint8
	if ev.Client.IsBot {
		bot = 1
	}
	const stmt = `INSERT INTO issue_events (timestamp, event_type, issue_id, user_id, category, status, previous_status, severity, media_kind, seconds, device_type, os, browser, is_bot, country, region) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := c.DB.ExecContext(ctx, stmt,
		ev.Timestamp, ev.Type, ev.IssueID, ev.UserID, ev.Category, ev.Status, ev.Previous, ev.Severity,
		ev.MediaKind, ev.Seconds, ev.Client.DeviceType, ev.Client.OS, ev.Client.Browser, bot,
		ev.Client.Country, ev.Client.Region)
	if err != nil {
		c.Logger.Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", ev.Type))
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	return nil
}

// EventsForIssue returns an issue's events in time order.
func (c *ClickHouse) EventsForIssue(ctx context.Context, issueID int64) ([]Event, error) {
	if c == nil || c.DB == nil {
		return nil, ErrUnavailable
	}
	const query = `SELECT timestamp, event_type, issue_id, user_id, category, status, previous_status, severity, media_kind, seconds, device_type, country FROM issue_events WHERE issue_id = ? ORDER BY timestamp`
	rows, err := c.DB.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			c.Logger.Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Timestamp, &ev.Type, &ev.IssueID, &ev.UserID, &ev.Category, &ev.Status,
			&ev.Previous, &ev.Severity, &ev.MediaKind, &ev.Seconds, &ev.Client.DeviceType, &ev.Client.Country); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the connection.
func (c *ClickHouse) Close() {
	if c != nil && c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Error("clickhouse close", zap.Error(err))
		}
	}
}
