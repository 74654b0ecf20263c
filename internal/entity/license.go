package entity

import (
	"time"

	"github.com/google/uuid"
)

type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "active"
	LicenseSuspended LicenseStatus = "suspended"
)

// License is a tenant's subscription entitlement. One row per tenant;
// repeated provisioning for the same tenant updates the row in place.
type License struct {
	ID                   uuid.UUID     `json:"id"`
	TenantID             string        `json:"tenant_id"`
	Plan                 string        `json:"plan"`
	Status               LicenseStatus `json:"status"`
	StripeCustomerID     *string       `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string       `json:"stripe_subscription_id,omitempty"`
	ContactEmail         *string       `json:"contact_email,omitempty"`
	Features             PlanFeatures  `json:"features"`
	SuspendReason        *string       `json:"suspend_reason,omitempty"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// PlanFeatures is the feature set granted by a plan tier.
type PlanFeatures struct {
	LMS             bool `json:"lms"`
	Certificates    bool `json:"certificates"`
	AIFeatures      bool `json:"ai_features"`
	CustomBranding  bool `json:"custom_branding"`
	APIAccess       bool `json:"api_access"`
	PrioritySupport bool `json:"priority_support"`
}

const (
	PlanTrial        = "trial"
	PlanBasic        = "basic"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

var planFeatures = map[string]PlanFeatures{
	PlanTrial: {},
	PlanBasic: {
		LMS:          true,
		Certificates: true,
	},
	PlanProfessional: {
		LMS:            true,
		Certificates:   true,
		AIFeatures:     true,
		CustomBranding: true,
	},
	PlanEnterprise: {
		LMS:             true,
		Certificates:    true,
		AIFeatures:      true,
		CustomBranding:  true,
		APIAccess:       true,
		PrioritySupport: true,
	},
}

// FeaturesForPlan maps a plan name to its fixed feature set. Unrecognized
// plans get the basic tier so a misnamed plan still yields a usable license.
func FeaturesForPlan(plan string) PlanFeatures {
	if f, ok := planFeatures[plan]; ok {
		return f
	}
	return planFeatures[PlanBasic]
}
