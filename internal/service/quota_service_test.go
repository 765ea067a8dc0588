package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

func newQuotaForTest(tenant models.Tenant, mailer Mailer) (*quotaService, *fakeTenantRepo) {
	repo := newFakeTenantRepo(tenant)
	if mailer == nil {
		mailer = &countingMailer{}
	}
	svc := NewQuotaService(repo, mailer, testLogger()).(*quotaService)
	return svc, repo
}

func monthMarker(now time.Time) *time.Time {
	marker := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return &marker
}

func TestQuotaConsumeAtBoundary(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newQuotaForTest(models.Tenant{
		ID:                 1,
		IsActive:           true,
		MonthlyCorrections: 10,
		UsedCorrections:    9,
		UsageResetDate:     monthMarker(now),
	}, nil)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Consume(context.Background(), 1, ActionCorrection))

	tenant, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 10, tenant.UsedCorrections)

	err = svc.Consume(context.Background(), 1, ActionCorrection)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	tenant, err = repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 10, tenant.UsedCorrections)
}

func TestQuotaZeroCapIsUnlimited(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	svc, _ := newQuotaForTest(models.Tenant{
		ID:             1,
		IsActive:       true,
		UsageResetDate: monthMarker(now),
	}, nil)
	svc.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		require.NoError(t, svc.Consume(context.Background(), 1, ActionGeneration))
	}
}

func TestQuotaMonthRollover(t *testing.T) {
	february := time.Date(2026, time.February, 20, 8, 0, 0, 0, time.UTC)
	svc, repo := newQuotaForTest(models.Tenant{
		ID:                  1,
		IsActive:            true,
		MonthlyInterviews:   5,
		UsedInterviews:      5,
		UsageResetDate:      monthMarker(february),
		QuotaAlertSentAt:    &february,
		QuotaAlertEnabled:   true,
		ContactEmail:        "admin@example.org",
		QuotaAlertThreshold: 10,
	}, nil)

	svc.now = func() time.Time { return february }
	err := svc.Consume(context.Background(), 1, ActionInterview)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	march := time.Date(2026, time.March, 1, 0, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return march }
	require.NoError(t, svc.Consume(context.Background(), 1, ActionInterview))

	tenant, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, tenant.UsedInterviews)
	require.Equal(t, time.March, tenant.UsageResetDate.Month())
}

func TestQuotaAlertSentOncePerMonth(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	mailer := &countingMailer{}
	svc, _ := newQuotaForTest(models.Tenant{
		ID:                  1,
		Name:                "Lycee Demo",
		IsActive:            true,
		MonthlyCorrections:  10,
		UsedCorrections:     8,
		UsageResetDate:      monthMarker(now),
		QuotaAlertEnabled:   true,
		QuotaAlertThreshold: 10,
		ContactEmail:        "admin@example.org",
	}, mailer)
	svc.now = func() time.Time { return now }

	// 9/10 leaves 10% remaining, which is exactly at the threshold.
	require.NoError(t, svc.Consume(context.Background(), 1, ActionCorrection))
	require.Equal(t, 1, mailer.sent)

	require.NoError(t, svc.Consume(context.Background(), 1, ActionCorrection))
	require.Equal(t, 1, mailer.sent)
}

func TestQuotaSubscriptionChecks(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	expired := now.AddDate(0, -1, 0)

	svc, _ := newQuotaForTest(models.Tenant{
		ID:                    1,
		IsActive:              true,
		SubscriptionExpiresAt: &expired,
	}, nil)
	svc.now = func() time.Time { return now }

	err := svc.Consume(context.Background(), 1, ActionCorrection)
	require.ErrorIs(t, err, ErrSubscriptionInactive)

	svc2, _ := newQuotaForTest(models.Tenant{ID: 2, IsActive: false}, nil)
	svc2.now = func() time.Time { return now }
	err = svc2.CanConsume(context.Background(), 2, ActionCorrection)
	require.ErrorIs(t, err, ErrSubscriptionInactive)
}

func TestQuotaUsageStats(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	svc, _ := newQuotaForTest(models.Tenant{
		ID:                 1,
		IsActive:           true,
		MonthlyCorrections: 100,
		UsedCorrections:    42,
		UsageResetDate:     monthMarker(now),
	}, nil)
	svc.now = func() time.Time { return now }

	stats, err := svc.UsageStats(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 42, stats.Corrections.Used)
	require.NotNil(t, stats.Corrections.Limit)
	require.Equal(t, 100, *stats.Corrections.Limit)
	require.Nil(t, stats.Generations.Limit)
}

func TestQuotaRefund(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	svc, repo := newQuotaForTest(models.Tenant{
		ID:                 1,
		IsActive:           true,
		MonthlyCorrections: 10,
		UsedCorrections:    3,
		UsageResetDate:     monthMarker(now),
	}, nil)
	svc.now = func() time.Time { return now }

	svc.Refund(context.Background(), 1, ActionCorrection)

	tenant, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, tenant.UsedCorrections)
}
