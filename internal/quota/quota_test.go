package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
)

// clock is a settable time source
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Wednesday
var start = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestQuota(t *testing.T) (*Quota, *storage.MemoryStore, *clock) {
	t.Helper()
	kv := storage.NewMemoryStore()
	c := &clock{now: start}
	return New(kv, c.Now), kv, c
}

func seed(t *testing.T, kv storage.Store, s State) {
	t.Helper()
	require.NoError(t, storage.Save(context.Background(), kv, s))
}

func freeState(daily int) State {
	return State{
		DailyDownloads:  daily,
		LastResetDate:   "2026-03-04",
		WeeklyResetDate: "2026-03-01",
		FirstUsedDate:   start,
	}
}

func TestGetStatusDefaults(t *testing.T) {
	q, kv, _ := newTestQuota(t)
	ctx := context.Background()

	state := q.GetStatus(ctx)
	assert.False(t, state.IsPro)
	assert.Equal(t, 0, state.DailyDownloads)
	assert.Equal(t, "2026-03-04", state.LastResetDate)
	assert.Equal(t, "2026-03-01", state.WeeklyResetDate, "weeks start on Sunday")
	assert.True(t, start.Equal(state.FirstUsedDate))

	// defaults are persisted on first read
	var stored State
	found, err := storage.Load(ctx, kv, &stored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-03-04", stored.LastResetDate)
}

func TestCanDownload(t *testing.T) {
	tests := []struct {
		name  string
		daily int
		count int
		want  Decision
	}{
		{"free within limits", 20, 3, Decision{Allowed: true, Reason: ReasonFree, Remaining: 5, Requested: 3, Limit: FreeDailyLimit}},
		{"batch limit with daily headroom", 24, 4, Decision{Reason: ReasonBatchLimit, Remaining: 1, Requested: 4, Limit: FreeBatchLimit}},
		{"exactly reaches daily limit", 23, 2, Decision{Allowed: true, Reason: ReasonFree, Remaining: 2, Requested: 2, Limit: FreeDailyLimit}},
		{"daily limit", 23, 3, Decision{Reason: ReasonDailyLimit, Remaining: 2, Requested: 3, Limit: FreeDailyLimit}},
		{"daily exhausted", 25, 1, Decision{Reason: ReasonDailyLimit, Remaining: 0, Requested: 1, Limit: FreeDailyLimit}},
		{"batch checked before daily", 25, 10, Decision{Reason: ReasonBatchLimit, Remaining: 0, Requested: 10, Limit: FreeBatchLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, kv, _ := newTestQuota(t)
			seed(t, kv, freeState(tt.daily))
			assert.Equal(t, tt.want, q.CanDownload(context.Background(), tt.count))
		})
	}
}

func TestCanDownloadPro(t *testing.T) {
	q, kv, _ := newTestQuota(t)
	s := freeState(100)
	s.IsPro = true
	seed(t, kv, s)

	d := q.CanDownload(context.Background(), 50)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonPro, d.Reason)
}

func TestCanDownloadFailsOpen(t *testing.T) {
	q, kv, _ := newTestQuota(t)
	seed(t, kv, freeState(25))
	require.NoError(t, kv.Close())

	d := q.CanDownload(context.Background(), 10)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonErrorFallback, d.Reason)

	state := q.GetStatus(context.Background())
	assert.Equal(t, 0, state.DailyDownloads)
	assert.False(t, state.IsPro)

	_, err := q.RecordDownload(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestDayRollover(t *testing.T) {
	q, kv, _ := newTestQuota(t)
	s := freeState(25)
	s.LastResetDate = "2026-03-03"
	s.WeeklyDownloads = 40
	seed(t, kv, s)

	state := q.GetStatus(context.Background())
	assert.Equal(t, 0, state.DailyDownloads)
	assert.Equal(t, "2026-03-04", state.LastResetDate)
	assert.Equal(t, 40, state.WeeklyDownloads, "same week keeps the weekly counter")

	var stored State
	_, err := storage.Load(context.Background(), kv, &stored)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DailyDownloads)
	assert.Equal(t, "2026-03-04", stored.LastResetDate)
}

func TestWeekRollover(t *testing.T) {
	q, kv, c := newTestQuota(t)
	ctx := context.Background()

	_, err := q.RecordDownload(ctx, 3)
	require.NoError(t, err)

	// Saturday: same week
	c.Advance(3 * 24 * time.Hour)
	state := q.GetStatus(ctx)
	assert.Equal(t, 0, state.DailyDownloads)
	assert.Equal(t, 3, state.WeeklyDownloads)

	// Sunday: new week
	c.Advance(24 * time.Hour)
	state = q.GetStatus(ctx)
	assert.Equal(t, 0, state.WeeklyDownloads)
	assert.Equal(t, "2026-03-08", state.WeeklyResetDate)
	assert.Equal(t, 3, state.TotalDownloads)

	// a stale week is left alone while the day still matches
	s := freeState(2)
	s.LastResetDate = "2026-03-08"
	s.WeeklyResetDate = "2026-02-22"
	s.WeeklyDownloads = 9
	seed(t, kv, s)
	state = q.GetStatus(ctx)
	assert.Equal(t, 2, state.DailyDownloads)
	assert.Equal(t, 9, state.WeeklyDownloads)
	assert.Equal(t, "2026-02-22", state.WeeklyResetDate)

	// and rolls over with the next day
	c.Advance(24 * time.Hour)
	state = q.GetStatus(ctx)
	assert.Equal(t, 0, state.DailyDownloads)
	assert.Equal(t, 0, state.WeeklyDownloads)
	assert.Equal(t, "2026-03-08", state.WeeklyResetDate)
}

func TestRecordDownload(t *testing.T) {
	q, kv, _ := newTestQuota(t)
	ctx := context.Background()

	state, err := q.RecordDownload(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, state.DailyDownloads)
	assert.Equal(t, 2, state.WeeklyDownloads)
	assert.Equal(t, 2, state.TotalDownloads)

	s := q.GetStatus(ctx)
	s.IsPro = true
	seed(t, kv, s)

	state, err = q.RecordDownload(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, state.DailyDownloads, "pro downloads are still counted")
	assert.Equal(t, 7, state.TotalDownloads)
}

func TestTrial(t *testing.T) {
	q, _, c := newTestQuota(t)
	ctx := context.Background()

	state, err := q.StartTrial(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsPro)
	assert.True(t, state.TrialUsed)
	assert.Equal(t, TrialKey, state.LicenseKey)
	require.NotNil(t, state.ExpiryDate)
	assert.True(t, start.Add(7*24*time.Hour).Equal(*state.ExpiryDate))

	assert.Equal(t, "Trial: 7 days left", q.StatusMessage(ctx))
	assert.True(t, q.HasFeature(ctx, "customFolders"))

	_, err = q.StartTrial(ctx)
	assert.ErrorIs(t, err, ErrTrialUsed)

	c.Advance(6*24*time.Hour + time.Hour)
	assert.Equal(t, "Trial: 1 days left", q.StatusMessage(ctx))

	c.Advance(24 * time.Hour)
	state = q.GetStatus(ctx)
	assert.False(t, state.IsPro, "expired trial is detected on read")
	assert.True(t, state.TrialUsed)
	assert.Equal(t, "Trial expired - Upgrade to Pro", q.StatusMessage(ctx))
	assert.False(t, q.HasFeature(ctx, "customFolders"))

	// back on the free limits
	d := q.CanDownload(ctx, FreeBatchLimit+1)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBatchLimit, d.Reason)
	d = q.CanDownload(ctx, FreeBatchLimit)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonFree, d.Reason)
	assert.Equal(t, Remaining{Remaining: FreeDailyLimit, Total: FreeDailyLimit}, q.Remaining(ctx))

	_, err = q.StartTrial(ctx)
	assert.ErrorIs(t, err, ErrTrialUsed)
}

func TestActivateLicense(t *testing.T) {
	q, _, c := newTestQuota(t)
	ctx := context.Background()

	_, err := q.ActivateLicense(ctx, "PRO-short")
	assert.ErrorIs(t, err, ErrInvalidLicense)
	assert.False(t, q.GetStatus(ctx).IsPro)

	state, err := q.ActivateLicense(ctx, "LIFETIME-ACCESS-2025")
	require.NoError(t, err)
	assert.True(t, state.IsPro)
	assert.Equal(t, "LIFETIME-ACCESS-2025", state.LicenseKey)
	require.NotNil(t, state.ExpiryDate)
	assert.True(t, start.AddDate(1, 0, 0).Equal(*state.ExpiryDate))
	assert.Equal(t, "Pro: All features unlocked", q.StatusMessage(ctx))
	assert.Equal(t, Remaining{Unlimited: true}, q.Remaining(ctx))

	c.Advance(366 * 24 * time.Hour)
	assert.False(t, q.GetStatus(ctx).IsPro)
	assert.Equal(t, "Free: 25/25 downloads today", q.StatusMessage(ctx))
}

func TestValidateLicenseKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"PRO-2025-DOWNLOAD-PREMIUM", true},
		{"LIFETIME-ACCESS-2025", true},
		{"DEV-TEST-LICENSE-KEY", true},
		{"PRO-1234567890123456", true},
		{"PRO-123456789012345", false},
		{"pro-12345678901234567890", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateLicenseKey(tt.key), tt.key)
	}

	assert.True(t, ValidateLicenseKey(GenerateLicenseKey(start)))
}

func TestRemainingAndStatusMessage(t *testing.T) {
	q, kv, _ := newTestQuota(t)
	ctx := context.Background()
	seed(t, kv, freeState(20))

	assert.Equal(t, Remaining{Remaining: 5, Total: 25, Used: 20}, q.Remaining(ctx))
	assert.Equal(t, "Free: 5/25 downloads today", q.StatusMessage(ctx))

	seed(t, kv, freeState(30))
	assert.Equal(t, 0, q.Remaining(ctx).Remaining)
}

func TestHasFeature(t *testing.T) {
	q, _, _ := newTestQuota(t)
	ctx := context.Background()

	for _, name := range []string{"customFolders", "advancedOrganization", "websiteStructure", "timestampNaming", "unlimitedDownloads", "apiAccess"} {
		assert.False(t, q.HasFeature(ctx, name), name)
	}
	assert.True(t, q.HasFeature(ctx, "batchDownloads"))
}

func TestEngagementStats(t *testing.T) {
	q, kv, c := newTestQuota(t)
	ctx := context.Background()

	assert.Equal(t, Engagement{}, q.EngagementStats(ctx))

	s := freeState(0)
	s.TotalDownloads = 10
	seed(t, kv, s)
	c.Advance(3*24*time.Hour + time.Hour)

	stats := q.EngagementStats(ctx)
	assert.Equal(t, 3, stats.DaysSinceFirstUse)
	assert.Equal(t, 10, stats.TotalDownloads)
	assert.Equal(t, 3.3, stats.AverageDownloadsPerDay)
}
