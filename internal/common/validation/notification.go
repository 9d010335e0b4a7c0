package validation

// NotificationRequestSchema is the inbound shape shared by the workflow
// worker, the queue consumer and the maintenance CLI.
const NotificationRequestSchema = `{
  "type": "object",
  "required": ["recipientEmail"],
  "properties": {
    "templateName":     {"type": "string", "maxLength": 128},
    "recipientEmail":   {"type": "string", "minLength": 3, "maxLength": 320},
    "language":         {"type": "string", "enum": ["", "ar", "en"]},
    "notificationType": {"type": "string", "maxLength": 64},
    "variables":        {"type": "object"}
  },
  "anyOf": [
    {"required": ["templateName"], "properties": {"templateName": {"minLength": 1}}},
    {"required": ["notificationType"], "properties": {"notificationType": {"minLength": 1}}}
  ]
}`

var notificationRequestValidator = MustValidator(NotificationRequestSchema)

// ValidateNotificationRequest runs the schema and then the address check,
// which JSON schema's "email" format applies too loosely.
func ValidateNotificationRequest(input map[string]interface{}) *ValidationResult {
	result := notificationRequestValidator.Validate(input)

	if email, ok := input["recipientEmail"].(string); ok && !result.HasErrors("recipientEmail") && !ValidateEmail(email) {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   "recipientEmail",
			Message: "not a valid email address",
			Code:    "INVALID_EMAIL",
		})
	}
	return result
}
