package sendnotification

import "notification-dispatch/internal/models"

// Input is the job's variable payload.
type Input struct {
	TemplateName     string                 `json:"templateName"`
	RecipientEmail   string                 `json:"recipientEmail"`
	Language         string                 `json:"language,omitempty"`
	NotificationType string                 `json:"notificationType,omitempty"`
	Variables        map[string]interface{} `json:"variables,omitempty"`
}

func (in *Input) Request() models.NotificationRequest {
	return models.NotificationRequest{
		TemplateName:     in.TemplateName,
		RecipientEmail:   in.RecipientEmail,
		Language:         in.Language,
		NotificationType: in.NotificationType,
		Variables:        in.Variables,
	}
}

// Output becomes the completed job's variables.
type Output struct {
	NotificationSent  bool   `json:"notificationSent"`
	DeliveryTier      int    `json:"deliveryTier"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
	LogID             string `json:"deliveryLogId,omitempty"`
}

func outputFrom(r models.Result) *Output {
	out := &Output{
		NotificationSent:  r.Success,
		DeliveryTier:      r.Tier,
		ProviderMessageID: r.ProviderMessageID,
		LogID:             r.LogID,
	}
	if !r.Success {
		out.Error = string(r.Error)
		if r.Detail != "" {
			out.Error += ": " + r.Detail
		}
	}
	return out
}
