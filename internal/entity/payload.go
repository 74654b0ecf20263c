package entity

import "encoding/json"

// Typed payload shapes, one per job type. The queue stores payloads opaque;
// handlers unmarshal into these at the boundary and validate before use.

type ProvisionPayload struct {
	TenantID             string `json:"tenant_id"`
	Plan                 string `json:"plan"`
	StripeCustomerID     string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`
	ContactEmail         string `json:"contact_email,omitempty"`
}

// SuspendPayload serves both license_suspend and license_reactivate.
// Action, when set, overrides the job type ("suspend" or "reactivate").
type SuspendPayload struct {
	LicenseID string `json:"license_id"`
	Action    string `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type EmailType string

const (
	EmailLicenseActivated EmailType = "license_activated"
	EmailLicenseSuspended EmailType = "license_suspended"
	EmailLicenseExpiring  EmailType = "license_expiring"
	EmailPaymentFailed    EmailType = "payment_failed"
	EmailWelcome          EmailType = "welcome"
	EmailPasswordReset    EmailType = "password_reset"
)

type EmailPayload struct {
	To           string            `json:"to"`
	EmailType    EmailType         `json:"email_type"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

type TenantSetupPayload struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name,omitempty"`
	Plan       string `json:"plan,omitempty"`
	AdminEmail string `json:"admin_email,omitempty"`
}

type WebhookPayload struct {
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Data      json.RawMessage `json:"data"`
}

func MarshalPayload(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
