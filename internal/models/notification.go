// internal/models/notification.go
package models

import "time"

// Supported content languages.
const (
	LanguageArabic  = "ar"
	LanguageEnglish = "en"
)

// NotificationRequest is a caller's intent to notify one recipient. It is
// built per call and never persisted.
type NotificationRequest struct {
	TemplateName     string                 `json:"templateName,omitempty"`
	RecipientEmail   string                 `json:"recipientEmail"`
	Language         string                 `json:"language,omitempty"`
	Variables        map[string]interface{} `json:"variables,omitempty"`
	NotificationType string                 `json:"notificationType,omitempty"`
}

// TemplateContent is one language variant of a template.
type TemplateContent struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Complete reports whether the variant carries a subject and at least one body.
func (c TemplateContent) Complete() bool {
	return c.Subject != "" && (c.Text != "" || c.HTML != "")
}

// Template is one row of a template family. Content is keyed by language.
type Template struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	IsActive  bool                       `json:"isActive"`
	Content   map[string]TemplateContent `json:"content"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// SenderIdentity is the From identity for one notification type and language.
type SenderIdentity struct {
	DisplayName  string `json:"name"`
	EmailAddress string `json:"address"`
	ReplyTo      string `json:"replyTo,omitempty"`
}

// ResolvedMessage is fully rendered and ready for a transport.
type ResolvedMessage struct {
	From     SenderIdentity `json:"from"`
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Text     string         `json:"text"`
	HTML     string         `json:"html"`
	Language string         `json:"language"`
	Template string         `json:"templateName"`
}

type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// DeliveryLogEntry is the immutable audit record of one dispatch.
// TransportTier is 1-based; 0 means no tier was attempted.
type DeliveryLogEntry struct {
	ID                string         `json:"id"`
	Recipient         string         `json:"recipient"`
	TemplateName      string         `json:"templateName"`
	NotificationType  string         `json:"notificationType,omitempty"`
	Language          string         `json:"language,omitempty"`
	Status            DeliveryStatus `json:"status"`
	TransportTier     int            `json:"transportTier"`
	TransportName     string         `json:"transportName,omitempty"`
	ErrorMessage      *string        `json:"errorMessage,omitempty"`
	ProviderMessageID *string        `json:"providerMessageId,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// FailureReason names a terminal failure surfaced to callers.
type FailureReason string

const (
	ReasonTemplateNotFound  FailureReason = "TemplateNotFound"
	ReasonAllTiersExhausted FailureReason = "AllTiersExhausted"
	ReasonInvalidRequest    FailureReason = "InvalidRequest"
)

// Result is the terminal outcome of a dispatch: either delivered by Tier or
// failed with Reason. Detail is a human-readable explanation and never a raw
// provider payload.
type Result struct {
	Success           bool          `json:"success"`
	Tier              int           `json:"tier,omitempty"`
	Transport         string        `json:"transport,omitempty"`
	ProviderMessageID string        `json:"providerMessageId,omitempty"`
	Error             FailureReason `json:"error,omitempty"`
	Detail            string        `json:"detail,omitempty"`
	LogID             string        `json:"logId,omitempty"`
}

func Delivered(tier int, transport, messageID string) Result {
	return Result{Success: true, Tier: tier, Transport: transport, ProviderMessageID: messageID}
}

func Failed(reason FailureReason, detail string) Result {
	return Result{Success: false, Error: reason, Detail: detail}
}
