package notify

import "time"

type AudienceType string

const (
	AudienceEscrow       AudienceType = "escrow"
	AudienceLender       AudienceType = "lender"
	AudienceListingAgent AudienceType = "listing_agent"
	AudienceBuyingAgent  AudienceType = "buying_agent"
	AudienceAllParties   AudienceType = "all_parties"
	AudienceSeller       AudienceType = "seller"
	AudienceBuyer        AudienceType = "buyer"
	AudienceInternalChat AudienceType = "internal_chat"
)

type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogSent    LogStatus = "sent"
	LogFailed  LogStatus = "failed"
)

type EmailTemplate struct {
	ID              string
	Key             string
	Name            string
	SubjectTemplate string
	BodyHTML        string
	BodyText        *string
	AudienceType    AudienceType
	IsActive        bool
}

// EmailLog is a row in the dedup ledger. A row of any status permanently
// blocks another dispatch of the same (deal, template, context date).
type EmailLog struct {
	ID              string
	DealID          string
	TemplateKey     string
	ContextDate     *time.Time
	Status          LogStatus
	RecipientEmails []string
	ErrorMessage    *string
	SentAt          *time.Time
	CreatedAt       time.Time
}

type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type Alert struct {
	DealID  string
	Type    string
	Level   AlertLevel
	Message string
}

type Recipient struct {
	Email string
	Name  string
}

// DispatchParams identifies one notification. ContextDate distinguishes
// recurrences of the same template on different dates; nil means the
// template fires at most once per deal ever.
type DispatchParams struct {
	DealID      string
	TemplateKey string
	ContextDate *time.Time
}

// DispatchResult reports a dispatch outcome without error returns: rule
// evaluation and step execution inspect it rather than unwrapping errors.
type DispatchResult struct {
	Success bool
	Sent    bool
	Skipped bool
	Reason  string
	Error   string
}

type BatchResult struct {
	Total   int
	Sent    int
	Skipped int
	Failed  int
	Results []DispatchResult
}

// RuleStats aggregates one daily-rules pass.
type RuleStats struct {
	Considered int `json:"considered"`
	Sent       int `json:"sent"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}
