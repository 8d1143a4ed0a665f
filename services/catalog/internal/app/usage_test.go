package app

import (
	"testing"
	"time"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/storage"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/store"
)

func newUsageApp(t *testing.T, caps QuotaCaps) *App {
	t.Helper()
	appCore, err := New(Config{
		Store:   store.NewMemoryStore(),
		Objects: storage.NewMemoryStore(),
		Caps:    caps,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return appCore
}

func freeReader(id uint) domain.User {
	return domain.User{ID: id, Role: domain.RoleReader, Subscription: domain.TierFree, Active: true}
}

func TestCanConsumeFreshUser(t *testing.T) {
	appCore := newUsageApp(t, QuotaCaps{FreeDaily: 3, FreeMonthly: 10, PremiumDaily: 5, PremiumMonthly: 50})
	now := time.Date(2026, time.March, 15, 12, 30, 0, 0, time.UTC)

	allowance, err := appCore.canConsumeAt(freeReader(1), now)
	if err != nil {
		t.Fatalf("can consume: %v", err)
	}
	if !allowance.Allowed || allowance.Remaining != 3 {
		t.Fatalf("fresh user: allowed=%v remaining=%d", allowance.Allowed, allowance.Remaining)
	}
	wantReset := time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)
	if !allowance.ResetAt.Equal(wantReset) {
		t.Fatalf("reset: got %v want %v", allowance.ResetAt, wantReset)
	}
}

func TestDailyCapBoundary(t *testing.T) {
	appCore := newUsageApp(t, QuotaCaps{FreeDaily: 2, FreeMonthly: 100, PremiumDaily: 5, PremiumMonthly: 50})
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	user := freeReader(1)

	for i := 0; i < 2; i++ {
		allowance, err := appCore.canConsumeAt(user, now)
		if err != nil {
			t.Fatalf("can consume %d: %v", i, err)
		}
		if !allowance.Allowed {
			t.Fatalf("read %d should be allowed", i)
		}
		if err := appCore.consumeAt(user, now); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}

	allowance, err := appCore.canConsumeAt(user, now)
	if err != nil {
		t.Fatalf("can consume at cap: %v", err)
	}
	if allowance.Allowed || allowance.Remaining != 0 {
		t.Fatalf("at cap: allowed=%v remaining=%d", allowance.Allowed, allowance.Remaining)
	}
	wantReset := time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)
	if !allowance.ResetAt.Equal(wantReset) {
		t.Fatalf("reset at next UTC midnight: got %v want %v", allowance.ResetAt, wantReset)
	}
}

func TestMonthlyWindowBinds(t *testing.T) {
	appCore := newUsageApp(t, QuotaCaps{FreeDaily: 10, FreeMonthly: 3, PremiumDaily: 5, PremiumMonthly: 50})
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	user := freeReader(1)

	for i := 0; i < 3; i++ {
		if err := appCore.consumeAt(user, now); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	allowance, err := appCore.canConsumeAt(user, now)
	if err != nil {
		t.Fatalf("can consume: %v", err)
	}
	if allowance.Allowed || allowance.Remaining != 0 {
		t.Fatalf("monthly cap: allowed=%v remaining=%d", allowance.Allowed, allowance.Remaining)
	}
	wantReset := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !allowance.ResetAt.Equal(wantReset) {
		t.Fatalf("reset at next month: got %v want %v", allowance.ResetAt, wantReset)
	}
}

func TestDailyWindowResets(t *testing.T) {
	appCore := newUsageApp(t, QuotaCaps{FreeDaily: 1, FreeMonthly: 100, PremiumDaily: 5, PremiumMonthly: 50})
	day1 := time.Date(2026, time.March, 15, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.March, 16, 1, 0, 0, 0, time.UTC)
	user := freeReader(1)

	if err := appCore.consumeAt(user, day1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	blocked, err := appCore.canConsumeAt(user, day1)
	if err != nil {
		t.Fatalf("can consume day1: %v", err)
	}
	if blocked.Allowed {
		t.Fatal("expected the daily cap to bind on day 1")
	}
	fresh, err := appCore.canConsumeAt(user, day2)
	if err != nil {
		t.Fatalf("can consume day2: %v", err)
	}
	if !fresh.Allowed || fresh.Remaining != 1 {
		t.Fatalf("next day: allowed=%v remaining=%d", fresh.Allowed, fresh.Remaining)
	}
}

func TestUnmeteredCallers(t *testing.T) {
	appCore := newUsageApp(t, QuotaCaps{FreeDaily: 1, FreeMonthly: 1, PremiumDaily: 1, PremiumMonthly: 1})
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	for _, user := range []domain.User{
		{ID: 1, Role: domain.RoleAuthor, Subscription: domain.TierAuthor},
		{ID: 2, Role: domain.RoleAdmin, Subscription: domain.TierPremium},
	} {
		allowance, err := appCore.canConsumeAt(user, now)
		if err != nil {
			t.Fatalf("can consume role=%s: %v", user.Role, err)
		}
		if !allowance.Allowed || !allowance.Unmetered {
			t.Fatalf("role=%s should be unmetered: %+v", user.Role, allowance)
		}
		if err := appCore.consumeAt(user, now); err != nil {
			t.Fatalf("consume role=%s: %v", user.Role, err)
		}
	}
}

func TestPremiumCapsApply(t *testing.T) {
	appCore := newUsageApp(t, QuotaCaps{FreeDaily: 1, FreeMonthly: 1, PremiumDaily: 5, PremiumMonthly: 50})
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	premium := domain.User{ID: 1, Role: domain.RoleReader, Subscription: domain.TierPremium}

	allowance, err := appCore.canConsumeAt(premium, now)
	if err != nil {
		t.Fatalf("can consume: %v", err)
	}
	if allowance.Remaining != 5 {
		t.Fatalf("premium remaining: got %d want 5", allowance.Remaining)
	}
}
