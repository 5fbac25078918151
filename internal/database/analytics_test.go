package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

var testDB *DB

const testDBDSN = "file:dbtest?mode=memory&cache=shared&_journal_mode=WAL"

func TestMain(m *testing.M) {
	db, err := OpenSQLite(testDBDSN, NewGormConfig(nil))
	if err != nil {
		panic(fmt.Errorf("failed to connect to the DB: %w", err))
	}
	underlyingDb, err := db.DB.DB()
	if err != nil {
		panic(fmt.Errorf("failed to access underlying DB: %w", err))
	}
	underlyingDb.SetMaxOpenConns(1)
	if err := db.AddDatabaseTables(); err != nil {
		panic(fmt.Errorf("failed to add database tables: %w", err))
	}
	if err := db.CreateIndices(); err != nil {
		panic(fmt.Errorf("failed to create indices: %w", err))
	}

	testDB = db

	os.Exit(m.Run())
}

func ptr[T any](v T) *T {
	return &v
}

func resetTable(t *testing.T) {
	require.NoError(t, testDB.Unsafe_DeleteAllAnalyticsRecords(context.Background()))
}

func TestUpsertCreatesThenOverwrites(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	first := &AnalyticsRecord{
		TelemetryPayload: TelemetryPayload{
			FirstInstallDate: "2024-01-01",
			Platform:         "ios",
			Locale:           ptr("en-US"),
			TotalUses:        ptr(int64(3)),
			HasLoggedIn:      ptr(true),
		},
		ClientIP:  "1.2.3.4",
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, testDB.UpsertAnalyticsRecord(ctx, first))

	updated := created.Add(time.Minute)
	second := &AnalyticsRecord{
		TelemetryPayload: TelemetryPayload{
			FirstInstallDate: "2024-01-01",
			Platform:         "android",
			TotalUses:        ptr(int64(4)),
		},
		ClientIP:  "5.6.7.8",
		CreatedAt: updated,
		UpdatedAt: updated,
	}
	require.NoError(t, testDB.UpsertAnalyticsRecord(ctx, second))

	cnt, err := testDB.CountAllAnalyticsRecords(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), cnt)

	got, err := testDB.AnalyticsRecordByIdentity(ctx, "2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "android", got.Platform)
	require.Equal(t, int64(4), *got.TotalUses)
	require.Nil(t, got.Locale, "omitted fields must overwrite prior values")
	require.Nil(t, got.HasLoggedIn, "omitted fields must overwrite prior values")
	require.Equal(t, "5.6.7.8", got.ClientIP)
	require.True(t, got.CreatedAt.Equal(created), "created_at is kept from the first write, got %v", got.CreatedAt)
	require.True(t, got.UpdatedAt.Equal(updated), "updated_at follows the latest write, got %v", got.UpdatedAt)
}

func TestUpsertRoundTripsEveryField(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

	payload := TelemetryPayload{
		FirstInstallDate:      "2024-03-01T12:00:00Z",
		Platform:              "darwin",
		Locale:                ptr("fr-FR"),
		Timezone:              ptr("Europe/Paris"),
		TotalUses:             ptr(int64(42)),
		ActiveDays:            ptr(int64(7)),
		DaysSinceInstall:      ptr(int64(3)),
		RetentionRate:         ptr(0.75),
		LastUsedDate:          ptr("2024-03-04"),
		HasLoggedIn:           ptr(false),
		SignupMethod:          ptr("google"),
		AuthButtonClicked:     ptr(true),
		OnboardingCompleted:   ptr(true),
		TutorialStatus:        ptr("in_progress"),
		TutorialCurrentStep:   ptr(int64(2)),
		QuickActionUsageCount: ptr(int64(11)),
		ShortcutUsageCount:    ptr(int64(0)),
	}
	require.NoError(t, testDB.UpsertAnalyticsRecord(ctx, &AnalyticsRecord{
		TelemetryPayload: payload,
		ClientIP:         "9.9.9.9",
		CreatedAt:        now,
		UpdatedAt:        now,
	}))

	got, err := testDB.AnalyticsRecordByIdentity(ctx, payload.FirstInstallDate)
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := deep.Equal(got.TelemetryPayload, payload); diff != nil {
		t.Error(diff)
	}
	require.Equal(t, "9.9.9.9", got.ClientIP)
}

func TestAnalyticsRecordByIdentityMissing(t *testing.T) {
	resetTable(t)
	got, err := testDB.AnalyticsRecordByIdentity(context.Background(), "never-reported")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCountAnalyticsRecordsFromOrigin(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(identity, origin string, createdAt time.Time) {
		require.NoError(t, testDB.UpsertAnalyticsRecord(ctx, &AnalyticsRecord{
			TelemetryPayload: TelemetryPayload{FirstInstallDate: identity, Platform: "ios"},
			ClientIP:         origin,
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
		}))
	}
	insert("a", "1.2.3.4", now.Add(-5*time.Minute))
	insert("b", "1.2.3.4", now.Add(-59*time.Minute))
	insert("c", "1.2.3.4", now.Add(-2*time.Hour))
	insert("d", "5.6.7.8", now.Add(-time.Minute))

	cnt, err := testDB.CountAnalyticsRecordsFromOrigin(ctx, "1.2.3.4", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), cnt)

	cnt, err = testDB.CountAnalyticsRecordsFromOrigin(ctx, "5.6.7.8", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), cnt)

	cnt, err = testDB.CountAnalyticsRecordsFromOrigin(ctx, "unknown", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(0), cnt)
}

func TestRecentAnalyticsRecords(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, identity := range []string{"old", "mid", "new"} {
		ts := base.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, testDB.UpsertAnalyticsRecord(ctx, &AnalyticsRecord{
			TelemetryPayload: TelemetryPayload{FirstInstallDate: identity, Platform: "ios"},
			ClientIP:         "1.1.1.1",
			CreatedAt:        ts,
			UpdatedAt:        ts,
		}))
	}

	records, err := testDB.RecentAnalyticsRecords(ctx, base.Add(12*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "new", records[0].FirstInstallDate)
	require.Equal(t, "mid", records[1].FirstInstallDate)

	records, err = testDB.RecentAnalyticsRecords(ctx, base, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestPing(t *testing.T) {
	require.NoError(t, testDB.Ping())
	stats, err := testDB.Stats()
	require.NoError(t, err)
	require.LessOrEqual(t, stats.OpenConnections, 1)
}
