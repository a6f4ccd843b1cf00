package ch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"taskbot/internal/models"
	"taskbot/migrations"
)

// setupTestJournal creates a test ClickHouse instance using testcontainers
func setupTestJournal(t *testing.T) (*ClickHouseJournal, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse integration test in short mode")
	}
	ctx := context.Background()

	// Start ClickHouse container
	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	// Get connection details
	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	// Apply the same goose migrations as cmd/migrate
	sqlDB := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port.Int())},
		Auth: clickhouse.Auth{Database: "default", Username: "default"},
	})
	require.NoError(t, migrations.Up(sqlDB), "Failed to run migrations")
	sqlDB.Close()

	db, err := NewClickHouseJournal(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	cleanup := func() {
		db.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestClickHouseJournal_RecordAndList(t *testing.T) {
	db, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSubmission(ctx, models.Submission{
		ID: "first", ConversationID: 5, Category: "q1", ResponsibleID: 270,
		TaskID: "100", Attachments: 2, Success: true, CreatedAt: base,
	}))
	require.NoError(t, db.RecordSubmission(ctx, models.Submission{
		ID: "second", ConversationID: 5, Category: "q2", ResponsibleID: 12,
		Attachments: 0, FailedAttachments: 1, Success: false, CreatedAt: base.Add(time.Hour),
	}))
	require.NoError(t, db.RecordSubmission(ctx, models.Submission{
		ID: "other", ConversationID: 6, Category: "q3", ResponsibleID: 270,
		TaskID: "101", Success: true, CreatedAt: base,
	}))

	got, err := db.RecentSubmissions(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "second", got[0].ID)
	assert.False(t, got[0].Success)
	assert.Equal(t, 1, got[0].FailedAttachments)

	assert.Equal(t, "first", got[1].ID)
	assert.Equal(t, "100", got[1].TaskID)
	assert.Equal(t, 2, got[1].Attachments)
	assert.Equal(t, int64(270), got[1].ResponsibleID)
	assert.True(t, base.Equal(got[1].CreatedAt))
}

func TestClickHouseJournal_Limit(t *testing.T) {
	db, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordSubmission(ctx, models.Submission{
			ID: fmt.Sprintf("s%d", i), ConversationID: 9, Success: true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := db.RecentSubmissions(ctx, 9, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s4", got[0].ID)

	empty, err := db.RecentSubmissions(ctx, 404, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
