// Package quota implements the freemium usage gate: daily and weekly download
// counters with calendar rollover, the free batch and daily limits, license
// activation and the one-time trial.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
)

const (
	// FreeDailyLimit is the number of downloads a free user gets per day
	FreeDailyLimit = 25
	// FreeBatchLimit is the largest batch a free user may start
	FreeBatchLimit = 3

	// TrialKey is stored as the license key while a trial is active
	TrialKey = "TRIAL"

	trialLength   = 7 * 24 * time.Hour
	licenseYears  = 1
	dateLayout    = "2006-01-02"
	hoursInOneDay = 24
)

var (
	// ErrInvalidLicense is returned when a license key is not accepted
	ErrInvalidLicense = errors.New("invalid license key")
	// ErrTrialUsed is returned when the one-time trial was already started
	ErrTrialUsed = errors.New("trial already used")
)

// Reason explains a download decision
type Reason string

const (
	ReasonPro           Reason = "pro"
	ReasonFree          Reason = "free"
	ReasonBatchLimit    Reason = "batch_limit"
	ReasonDailyLimit    Reason = "daily_limit"
	ReasonErrorFallback Reason = "error_fallback"
)

// State is the persisted usage record
type State struct {
	IsPro           bool       `json:"isPro"`
	LicenseKey      string     `json:"licenseKey"`
	ActivationDate  *time.Time `json:"activationDate"`
	ExpiryDate      *time.Time `json:"expiryDate"`
	TrialUsed       bool       `json:"trialUsed"`
	DailyDownloads  int        `json:"dailyDownloads"`
	WeeklyDownloads int        `json:"weeklyDownloads"`
	LastResetDate   string     `json:"lastResetDate"`
	WeeklyResetDate string     `json:"weeklyResetDate"`
	TotalDownloads  int        `json:"totalDownloads"`
	FirstUsedDate   time.Time  `json:"firstUsedDate"`
}

// Decision is the answer to a download request
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    Reason `json:"reason"`
	Remaining int    `json:"remaining"`
	Requested int    `json:"requested"`
	Limit     int    `json:"limit"`
}

// Quota reads and updates the usage state. Every operation is serialized.
type Quota struct {
	kv    storage.Store
	now   func() time.Time
	mutex sync.Mutex
}

// New creates a Quota over kv. now defaults to the wall clock.
func New(kv storage.Store, now func() time.Time) *Quota {
	if now == nil {
		now = time.Now
	}
	return &Quota{kv: kv, now: now}
}

func (q *Quota) defaults() State {
	now := q.now()
	return State{
		LastResetDate:   today(now),
		WeeklyResetDate: weekStart(now),
		FirstUsedDate:   now,
	}
}

// GetStatus returns the usage state after applying day and week rollover and
// lazy expiry. A storage failure yields the defaults.
func (q *Quota) GetStatus(ctx context.Context) State {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	state, err := q.status(ctx)
	if err != nil {
		logger.Warningf("Failed to read usage state, using defaults: %v", err)
		return q.defaults()
	}
	return state
}

// status loads, rolls over and persists the state. Callers hold q.mutex.
func (q *Quota) status(ctx context.Context) (State, error) {
	state := q.defaults()
	found, err := storage.Load(ctx, q.kv, &state)
	if err != nil {
		return State{}, err
	}

	now := q.now()
	changed := !found

	if day := today(now); state.LastResetDate != day {
		state.DailyDownloads = 0
		state.LastResetDate = day
		changed = true

		// the week only rolls over together with the day
		if week := weekStart(now); state.WeeklyResetDate != week {
			state.WeeklyDownloads = 0
			state.WeeklyResetDate = week
		}
	}
	if state.IsPro && state.ExpiryDate != nil && !now.Before(*state.ExpiryDate) {
		logger.Infof("License %q expired on %s", state.LicenseKey, state.ExpiryDate.Format(time.RFC3339))
		state.IsPro = false
		changed = true
	}

	if changed {
		if err := storage.Save(ctx, q.kv, state); err != nil {
			return State{}, err
		}
	}
	return state, nil
}

// CanDownload decides whether a batch of count files may start. The batch
// limit is checked before the daily limit. When the state cannot be read the
// download is allowed.
func (q *Quota) CanDownload(ctx context.Context, count int) Decision {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	state, err := q.status(ctx)
	if err != nil {
		logger.Warningf("Usage check failed, allowing download: %v", err)
		return Decision{Allowed: true, Reason: ReasonErrorFallback, Requested: count}
	}
	return decide(state, count)
}

func decide(state State, count int) Decision {
	if state.IsPro {
		return Decision{Allowed: true, Reason: ReasonPro, Requested: count}
	}

	remaining := max(0, FreeDailyLimit-state.DailyDownloads)

	if count > FreeBatchLimit {
		return Decision{Reason: ReasonBatchLimit, Remaining: remaining, Requested: count, Limit: FreeBatchLimit}
	}
	if state.DailyDownloads+count > FreeDailyLimit {
		return Decision{Reason: ReasonDailyLimit, Remaining: remaining, Requested: count, Limit: FreeDailyLimit}
	}
	return Decision{Allowed: true, Reason: ReasonFree, Remaining: remaining, Requested: count, Limit: FreeDailyLimit}
}

// RecordDownload adds count to the daily, weekly and total counters. Pro
// accounts are counted too.
func (q *Quota) RecordDownload(ctx context.Context, count int) (State, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	state, err := q.status(ctx)
	if err != nil {
		return State{}, fmt.Errorf("failed to read usage state: %w", err)
	}

	state.DailyDownloads += count
	state.WeeklyDownloads += count
	state.TotalDownloads += count

	if err := storage.Save(ctx, q.kv, state); err != nil {
		return State{}, fmt.Errorf("failed to record downloads: %w", err)
	}
	logger.Debugf("Recorded %d downloads (today %d, total %d)", count, state.DailyDownloads, state.TotalDownloads)
	return state, nil
}

func today(t time.Time) string {
	return t.Format(dateLayout)
}

// weekStart returns the date of the Sunday that starts t's week
func weekStart(t time.Time) string {
	return t.AddDate(0, 0, -int(t.Weekday())).Format(dateLayout)
}
