package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/models"
	"github.com/degun-osint/brainnotfound-go-api/internal/repository"
)

// Action is one metered AI operation.
type Action string

const (
	ActionCorrection    Action = "correction"
	ActionGeneration    Action = "generation"
	ActionClassAnalysis Action = "class_analysis"
	ActionInterview     Action = "interview"
)

// ErrQuotaExceeded is returned when the tenant's monthly cap for an action
// is exhausted.
var ErrQuotaExceeded = errors.New("monthly quota exceeded")

// ErrSubscriptionInactive is returned when the tenant is disabled or its
// subscription has expired.
var ErrSubscriptionInactive = errors.New("subscription inactive")

// QuotaService meters tenant AI usage. Consume is the only mutation path
// and performs check-and-increment atomically, so concurrent submissions
// cannot push a counter past its cap.
type QuotaService interface {
	Consume(ctx context.Context, tenantID uint, action Action) error
	CanConsume(ctx context.Context, tenantID uint, action Action) error
	Refund(ctx context.Context, tenantID uint, action Action)
	UsageStats(ctx context.Context, tenantID uint) (dto.UsageStats, error)
}

type quotaService struct {
	tenants repository.TenantRepository
	mailer  Mailer
	logger  zerolog.Logger

	// Serializes check-and-increment within this process. Multi-node
	// deployments would move this into a conditional UPDATE.
	mu sync.Mutex

	now func() time.Time
}

// NewQuotaService instantiates the quota governor.
func NewQuotaService(tenants repository.TenantRepository, mailer Mailer, logger zerolog.Logger) QuotaService {
	return &quotaService{
		tenants: tenants,
		mailer:  mailer,
		logger:  logger.With().Str("component", "quota").Logger(),
		now:     time.Now,
	}
}

func (s *quotaService) Consume(ctx context.Context, tenantID uint, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}

	now := s.now()
	if !tenant.SubscriptionActive(now) {
		return ErrSubscriptionInactive
	}

	resetIfNewMonth(&tenant, now)

	used, limit := counters(&tenant, action)
	if limit > 0 && *used >= limit {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, action)
	}

	*used++

	alert := s.shouldAlert(&tenant, now)
	if alert {
		sentAt := now
		tenant.QuotaAlertSentAt = &sentAt
	}

	if err := s.tenants.Update(ctx, &tenant); err != nil {
		return fmt.Errorf("failed to persist tenant usage: %w", err)
	}

	if alert {
		s.sendAlert(tenant)
	}

	return nil
}

func (s *quotaService) CanConsume(ctx context.Context, tenantID uint, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}

	now := s.now()
	if !tenant.SubscriptionActive(now) {
		return ErrSubscriptionInactive
	}

	resetIfNewMonth(&tenant, now)

	used, limit := counters(&tenant, action)
	if limit > 0 && *used >= limit {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, action)
	}

	return nil
}

// Refund gives one unit back after work that was charged but never ran.
// Failures are logged, not returned: refund is an optimization, not a
// correctness requirement.
func (s *quotaService) Refund(ctx context.Context, tenantID uint, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("tenant_id", tenantID).Msg("failed to load tenant for refund")
		return
	}

	used, _ := counters(&tenant, action)
	if *used > 0 {
		*used--
	}

	if err := s.tenants.Update(ctx, &tenant); err != nil {
		s.logger.Warn().Err(err).Uint("tenant_id", tenantID).Msg("failed to persist quota refund")
	}
}

func (s *quotaService) UsageStats(ctx context.Context, tenantID uint) (dto.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return dto.UsageStats{}, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}

	if resetIfNewMonth(&tenant, s.now()) {
		if err := s.tenants.Update(ctx, &tenant); err != nil {
			return dto.UsageStats{}, fmt.Errorf("failed to persist usage reset: %w", err)
		}
	}

	return dto.UsageStats{
		Corrections:   actionUsage(tenant.UsedCorrections, tenant.MonthlyCorrections),
		Generations:   actionUsage(tenant.UsedGenerations, tenant.MonthlyGenerations),
		ClassAnalyses: actionUsage(tenant.UsedClassAnalyses, tenant.MonthlyClassAnalyses),
		Interviews:    actionUsage(tenant.UsedInterviews, tenant.MonthlyInterviews),
	}, nil
}

func actionUsage(used, limit int) dto.ActionUsage {
	usage := dto.ActionUsage{Used: used}
	if limit > 0 {
		usage.Limit = &limit
	}
	return usage
}

// resetIfNewMonth zeroes the usage counters when the stored reset marker
// belongs to a previous month. Returns true when a reset happened; the
// caller persists the tenant.
func resetIfNewMonth(tenant *models.Tenant, now time.Time) bool {
	if tenant.UsageResetDate != nil &&
		tenant.UsageResetDate.Year() == now.Year() &&
		tenant.UsageResetDate.Month() == now.Month() {
		return false
	}

	tenant.UsedCorrections = 0
	tenant.UsedGenerations = 0
	tenant.UsedClassAnalyses = 0
	tenant.UsedInterviews = 0
	tenant.QuotaAlertSentAt = nil

	marker := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	tenant.UsageResetDate = &marker

	return true
}

func counters(tenant *models.Tenant, action Action) (*int, int) {
	switch action {
	case ActionCorrection:
		return &tenant.UsedCorrections, tenant.MonthlyCorrections
	case ActionGeneration:
		return &tenant.UsedGenerations, tenant.MonthlyGenerations
	case ActionClassAnalysis:
		return &tenant.UsedClassAnalyses, tenant.MonthlyClassAnalyses
	case ActionInterview:
		return &tenant.UsedInterviews, tenant.MonthlyInterviews
	default:
		return &tenant.UsedCorrections, tenant.MonthlyCorrections
	}
}

// shouldAlert checks, after the increment, whether any capped action has
// dropped to or below the alert threshold. At most one alert per calendar
// month; the counter reset clears QuotaAlertSentAt.
func (s *quotaService) shouldAlert(tenant *models.Tenant, now time.Time) bool {
	if !tenant.QuotaAlertEnabled || tenant.ContactEmail == "" {
		return false
	}
	if tenant.QuotaAlertSentAt != nil &&
		tenant.QuotaAlertSentAt.Year() == now.Year() &&
		tenant.QuotaAlertSentAt.Month() == now.Month() {
		return false
	}

	threshold := tenant.QuotaAlertThreshold
	if threshold <= 0 {
		threshold = 10
	}

	pairs := [][2]int{
		{tenant.UsedCorrections, tenant.MonthlyCorrections},
		{tenant.UsedGenerations, tenant.MonthlyGenerations},
		{tenant.UsedClassAnalyses, tenant.MonthlyClassAnalyses},
		{tenant.UsedInterviews, tenant.MonthlyInterviews},
	}
	for _, pair := range pairs {
		used, limit := pair[0], pair[1]
		if limit <= 0 {
			continue
		}
		remaining := limit - used
		if remaining*100 <= threshold*limit {
			return true
		}
	}

	return false
}

func (s *quotaService) sendAlert(tenant models.Tenant) {
	subject := fmt.Sprintf("AI quota running low for %s", tenant.Name)
	body := fmt.Sprintf(
		"<p>Hello,</p><p>Your organization <strong>%s</strong> has used most of its monthly AI quota:</p>"+
			"<ul><li>Corrections: %d / %d</li><li>Generations: %d / %d</li>"+
			"<li>Class analyses: %d / %d</li><li>Interviews: %d / %d</li></ul>"+
			"<p>Counters reset on the first day of next month.</p>",
		tenant.Name,
		tenant.UsedCorrections, tenant.MonthlyCorrections,
		tenant.UsedGenerations, tenant.MonthlyGenerations,
		tenant.UsedClassAnalyses, tenant.MonthlyClassAnalyses,
		tenant.UsedInterviews, tenant.MonthlyInterviews,
	)

	if err := s.mailer.Send(tenant.ContactEmail, subject, body); err != nil {
		s.logger.Warn().Err(err).Uint("tenant_id", tenant.ID).Msg("failed to send quota alert")
		return
	}

	s.logger.Info().Uint("tenant_id", tenant.ID).Msg("quota alert sent")
}
