package ch

import (
	"context"
	"crypto/tls"
	"fmt"

	"taskbot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseJournal struct {
	conn clickhouse.Conn
}

// NewClickHouseJournal creates a new ClickHouse connection for the submission journal
func NewClickHouseJournal(host string, port int, database, user, password string, useTLS bool) (*ClickHouseJournal, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseJournal{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseJournal) Initialize(ctx context.Context) error {
	return nil
}

// RecordSubmission inserts one submission row
func (db *ClickHouseJournal) RecordSubmission(ctx context.Context, s models.Submission) error {
	err := db.conn.Exec(ctx, `INSERT INTO submissions
		(id, conversation_id, category, responsible_id, task_id, attachments, failed_attachments, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ConversationID, s.Category, s.ResponsibleID, s.TaskID,
		uint32(s.Attachments), uint32(s.FailedAttachments), s.Success, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// RecentSubmissions returns the last N submissions of a conversation
func (db *ClickHouseJournal) RecentSubmissions(ctx context.Context, conversationID int64, limit int) ([]models.Submission, error) {
	rows, err := db.conn.Query(ctx, `SELECT id, conversation_id, category, responsible_id, task_id,
			attachments, failed_attachments, success, created_at
		FROM submissions
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []models.Submission
	for rows.Next() {
		var (
			s                   models.Submission
			attachments, failed uint32
		)
		if err := rows.Scan(&s.ID, &s.ConversationID, &s.Category, &s.ResponsibleID, &s.TaskID,
			&attachments, &failed, &s.Success, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.Attachments = int(attachments)
		s.FailedAttachments = int(failed)
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return submissions, nil
}

// Close closes the database connection
func (db *ClickHouseJournal) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
