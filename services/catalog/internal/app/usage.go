package app

import (
	"fmt"
	"time"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
)

// QuotaCaps holds per-tier chunk-read limits. A zero or negative cap means
// the window is unlimited for that tier.
type QuotaCaps struct {
	FreeDaily      int
	FreeMonthly    int
	PremiumDaily   int
	PremiumMonthly int
}

// DefaultQuotaCaps are applied when the config leaves caps unset.
var DefaultQuotaCaps = QuotaCaps{
	FreeDaily:      20,
	FreeMonthly:    200,
	PremiumDaily:   200,
	PremiumMonthly: 2000,
}

// Allowance reports whether a user may read another chunk right now.
type Allowance struct {
	Allowed   bool      `json:"allowed"`
	Unmetered bool      `json:"unmetered"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// periodWindow is one UTC calendar window with its reset boundary.
type periodWindow struct {
	period domain.UsagePeriod
	start  time.Time
	reset  time.Time
	cap    int
}

func (a *App) windowsFor(user domain.User, now time.Time) []periodWindow {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var daily, monthly int
	switch user.Subscription {
	case domain.TierPremium:
		daily, monthly = a.caps.PremiumDaily, a.caps.PremiumMonthly
	default:
		daily, monthly = a.caps.FreeDaily, a.caps.FreeMonthly
	}
	return []periodWindow{
		{period: domain.PeriodDaily, start: dayStart, reset: dayStart.AddDate(0, 0, 1), cap: daily},
		{period: domain.PeriodMonthly, start: monthStart, reset: monthStart.AddDate(0, 1, 0), cap: monthly},
	}
}

func unmetered(user domain.User) bool {
	return user.Role == domain.RoleAuthor || user.Role == domain.RoleAdmin || user.Subscription == domain.TierAuthor
}

// CanConsume reports the remaining allowance across the daily and monthly
// windows. The binding window is the one with the least headroom; its reset
// time is returned, preferring the daily window on a tie since it resets
// sooner.
func (a *App) CanConsume(user domain.User) (Allowance, error) {
	return a.canConsumeAt(user, time.Now())
}

func (a *App) canConsumeAt(user domain.User, now time.Time) (Allowance, error) {
	if unmetered(user) {
		return Allowance{Allowed: true, Unmetered: true}, nil
	}
	windows := a.windowsFor(user, now)
	binding := Allowance{Allowed: true, Remaining: -1}
	for _, w := range windows {
		if w.cap <= 0 {
			continue
		}
		usage, ok, err := a.store.GetUsage(user.ID, w.period, w.start)
		used := 0
		if err != nil {
			return Allowance{}, fmt.Errorf("fetch usage: %w", err)
		}
		if ok {
			used = usage.UsedCount
		}
		remaining := w.cap - used
		if remaining < 0 {
			remaining = 0
		}
		if binding.Remaining == -1 || remaining < binding.Remaining {
			binding = Allowance{Allowed: remaining > 0, Remaining: remaining, ResetAt: w.reset}
		}
	}
	if binding.Remaining == -1 {
		// No capped window for this tier.
		return Allowance{Allowed: true, Unmetered: true}, nil
	}
	return binding, nil
}

// Consume records one chunk read against both windows in a single
// transaction, lazily creating the period rows.
func (a *App) Consume(user domain.User) error {
	return a.consumeAt(user, time.Now())
}

func (a *App) consumeAt(user domain.User, now time.Time) error {
	if unmetered(user) {
		return nil
	}
	windows := a.windowsFor(user, now)
	rows := make([]domain.ReaderUsage, 0, len(windows))
	for _, w := range windows {
		rows = append(rows, domain.ReaderUsage{
			UserID:      user.ID,
			PeriodType:  w.period,
			PeriodStart: w.start,
			UsedCount:   1,
			ResetAt:     w.reset,
		})
	}
	if err := a.store.ConsumeUsage(user.ID, rows); err != nil {
		return fmt.Errorf("consume usage: %w", err)
	}
	return nil
}
