package types

import "time"

type TenantStatus string

const (
	StatusProvisioning TenantStatus = "provisioning"
	StatusActive       TenantStatus = "active"
	StatusSuspended    TenantStatus = "suspended"
	StatusDeactivated  TenantStatus = "deactivated"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case StatusProvisioning, StatusActive, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}

// DefaultReviewThreshold applies when a tenant has no explicit threshold.
const DefaultReviewThreshold = 0.85

// ReviewRule is a tenant-authored CEL expression evaluated against a
// finished execution. A rule returning true forces human review.
type ReviewRule struct {
	RuleID     string `json:"rule_id" yaml:"rule_id"`
	Expr       string `json:"expr" yaml:"expr"`
	ReasonCode string `json:"reason_code" yaml:"reason_code"`
}

type TenantConfig struct {
	Features                  map[string]bool `json:"features,omitempty" yaml:"features,omitempty"`
	EnabledTasks              map[string]bool `json:"enabled_tasks,omitempty" yaml:"enabled_tasks,omitempty"`
	ReviewThreshold           float64         `json:"review_threshold,omitempty" yaml:"review_threshold,omitempty"`
	ReviewRules               []ReviewRule    `json:"review_rules,omitempty" yaml:"review_rules,omitempty"`
	RateLimitPerMinute        int             `json:"rate_limit_per_minute,omitempty" yaml:"rate_limit_per_minute,omitempty"`
	MaxTaskExecutionsPerMonth int64           `json:"max_task_executions_per_month,omitempty" yaml:"max_task_executions_per_month,omitempty"`
}

// TaskEnabled reports whether a task type is switched on for this tenant.
// Unknown task types are disabled.
func (c TenantConfig) TaskEnabled(taskType string) bool {
	return c.EnabledTasks[taskType]
}

func (c TenantConfig) FeatureEnabled(name string) bool {
	return c.Features[name]
}

// EffectiveReviewThreshold returns the tenant threshold, falling back to
// the platform default when unset or out of range.
func (c TenantConfig) EffectiveReviewThreshold() float64 {
	if c.ReviewThreshold <= 0 || c.ReviewThreshold > 1 {
		return DefaultReviewThreshold
	}
	return c.ReviewThreshold
}

// TenantRecord is a snapshot of one tenant's registration. The execution
// core only ever reads it; provisioning operations own all writes.
type TenantRecord struct {
	TenantID     string       `json:"tenant_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Subdomain    string       `json:"subdomain"`
	Domains      []string     `json:"domains,omitempty"`
	Status       TenantStatus `json:"status"`
	StatusReason string       `json:"status_reason,omitempty"`
	Config       TenantConfig `json:"config"`

	SubscriptionTier string `json:"subscription_tier,omitempty"`
	ContactEmail     string `json:"contact_email,omitempty"`

	TotalTaskExecutions int64 `json:"total_task_executions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
