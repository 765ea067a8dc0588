package models

import "time"

// Tenant is an organization with its own monthly AI usage caps. A cap of
// zero means unlimited. Usage counters reset lazily the first time they are
// touched in a new month.
type Tenant struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Slug string `gorm:"size:50;uniqueIndex;not null" json:"slug"`
	Name string `gorm:"size:200;not null" json:"name"`

	IsActive              bool       `gorm:"default:true" json:"is_active"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`

	MonthlyCorrections    int `gorm:"default:0" json:"monthly_corrections"`
	MonthlyGenerations    int `gorm:"default:0" json:"monthly_generations"`
	MonthlyClassAnalyses  int `gorm:"default:0" json:"monthly_class_analyses"`
	MonthlyInterviews     int `gorm:"default:0" json:"monthly_interviews"`
	UsedCorrections       int `gorm:"default:0" json:"used_corrections"`
	UsedGenerations       int `gorm:"default:0" json:"used_generations"`
	UsedClassAnalyses     int `gorm:"default:0" json:"used_class_analyses"`
	UsedInterviews        int `gorm:"default:0" json:"used_interviews"`

	UsageResetDate *time.Time `json:"usage_reset_date"`

	QuotaAlertEnabled   bool       `gorm:"default:false" json:"quota_alert_enabled"`
	QuotaAlertThreshold int        `gorm:"default:10" json:"quota_alert_threshold"`
	QuotaAlertSentAt    *time.Time `json:"quota_alert_sent_at"`
	ContactEmail        string     `gorm:"size:200" json:"contact_email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubscriptionActive reports whether the tenant may consume AI actions at all.
func (t Tenant) SubscriptionActive(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.SubscriptionExpiresAt == nil {
		return true
	}
	return !t.SubscriptionExpiresAt.Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
