package quota

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
)

const (
	licensePrefix    = "PRO-"
	licenseMinLength = 20
)

// acceptedKeys are license keys accepted regardless of shape
var acceptedKeys = map[string]bool{
	"PRO-2025-DOWNLOAD-PREMIUM": true,
	"LIFETIME-ACCESS-2025":      true,
	"DEV-TEST-LICENSE-KEY":      true,
}

// premiumFeatures are unavailable on the free tier
var premiumFeatures = map[string]bool{
	"customFolders":        true,
	"advancedOrganization": true,
	"websiteStructure":     true,
	"timestampNaming":      true,
	"unlimitedDownloads":   true,
	"apiAccess":            true,
}

// Remaining describes how many downloads are left today
type Remaining struct {
	Unlimited bool `json:"unlimited"`
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
	Used      int  `json:"used"`
}

// Engagement summarizes usage since the first run
type Engagement struct {
	TotalDownloads         int     `json:"totalDownloads"`
	DailyDownloads         int     `json:"dailyDownloads"`
	WeeklyDownloads        int     `json:"weeklyDownloads"`
	DaysSinceFirstUse      int     `json:"daysSinceFirstUse"`
	AverageDownloadsPerDay float64 `json:"averageDownloadsPerDay"`
}

// ValidateLicenseKey reports whether key is accepted. This is a shape check,
// not a cryptographic one.
func ValidateLicenseKey(key string) bool {
	if acceptedKeys[key] {
		return true
	}
	return strings.HasPrefix(key, licensePrefix) && len(key) >= licenseMinLength
}

// GenerateLicenseKey returns a new key of the accepted PRO- shape
func GenerateLicenseKey(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strings.ToUpper(fmt.Sprintf("%s%d-%s", licensePrefix, now.UnixMilli(), random))
}

// ActivateLicense grants pro status for one year when key is accepted
func (q *Quota) ActivateLicense(ctx context.Context, key string) (State, error) {
	if !ValidateLicenseKey(key) {
		return State{}, ErrInvalidLicense
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	state, err := q.status(ctx)
	if err != nil {
		return State{}, fmt.Errorf("failed to read usage state: %w", err)
	}

	activated := q.now()
	expires := activated.AddDate(licenseYears, 0, 0)
	state.IsPro = true
	state.LicenseKey = key
	state.ActivationDate = &activated
	state.ExpiryDate = &expires

	if err := storage.Save(ctx, q.kv, state); err != nil {
		return State{}, fmt.Errorf("failed to activate license: %w", err)
	}
	logger.Infof("License activated until %s", expires.Format(time.RFC3339))
	return state, nil
}

// StartTrial grants pro status for seven days. It can succeed only once.
func (q *Quota) StartTrial(ctx context.Context) (State, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	state, err := q.status(ctx)
	if err != nil {
		return State{}, fmt.Errorf("failed to read usage state: %w", err)
	}
	if state.TrialUsed {
		return State{}, ErrTrialUsed
	}

	started := q.now()
	expires := started.Add(trialLength)
	state.IsPro = true
	state.TrialUsed = true
	state.LicenseKey = TrialKey
	state.ActivationDate = &started
	state.ExpiryDate = &expires

	if err := storage.Save(ctx, q.kv, state); err != nil {
		return State{}, fmt.Errorf("failed to start trial: %w", err)
	}
	logger.Infof("Trial started, expires %s", expires.Format(time.RFC3339))
	return state, nil
}

// Remaining returns today's remaining free downloads
func (q *Quota) Remaining(ctx context.Context) Remaining {
	return remainingFor(q.GetStatus(ctx))
}

func remainingFor(state State) Remaining {
	if state.IsPro {
		return Remaining{Unlimited: true}
	}
	return Remaining{
		Remaining: max(0, FreeDailyLimit-state.DailyDownloads),
		Total:     FreeDailyLimit,
		Used:      state.DailyDownloads,
	}
}

// StatusMessage returns a one-line description of the license state
func (q *Quota) StatusMessage(ctx context.Context) string {
	state := q.GetStatus(ctx)

	if !state.IsPro {
		if state.LicenseKey == TrialKey && state.ExpiryDate != nil {
			return "Trial expired - Upgrade to Pro"
		}
		r := remainingFor(state)
		return fmt.Sprintf("Free: %d/%d downloads today", r.Remaining, r.Total)
	}

	if state.LicenseKey == TrialKey && state.ExpiryDate != nil {
		daysLeft := int(math.Ceil(state.ExpiryDate.Sub(q.now()).Hours() / hoursInOneDay))
		return fmt.Sprintf("Trial: %d days left", daysLeft)
	}

	return "Pro: All features unlocked"
}

// EngagementStats reports usage since the first run. The average is rounded
// to one decimal place.
func (q *Quota) EngagementStats(ctx context.Context) Engagement {
	state := q.GetStatus(ctx)

	days := int(q.now().Sub(state.FirstUsedDate).Hours() / hoursInOneDay)
	if days < 0 {
		days = 0
	}

	stats := Engagement{
		TotalDownloads:    state.TotalDownloads,
		DailyDownloads:    state.DailyDownloads,
		WeeklyDownloads:   state.WeeklyDownloads,
		DaysSinceFirstUse: days,
	}
	if days > 0 {
		stats.AverageDownloadsPerDay = math.Round(float64(state.TotalDownloads)/float64(days)*10) / 10
	}
	return stats
}

// HasFeature reports whether the named feature is available. Pro unlocks
// everything; unknown features are free.
func (q *Quota) HasFeature(ctx context.Context, name string) bool {
	if q.GetStatus(ctx).IsPro {
		return true
	}
	return !premiumFeatures[name]
}
