// Package sender maps a notification type and language to a From identity.
package sender

import (
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/models"
)

const (
	genericSuffixEn = "Islamic Marriage Platform"
	genericSuffixAr = "منصة الزواج الإسلامي"
)

// Resolver is an immutable lookup table built once from configuration.
type Resolver struct {
	table          map[string]map[string]models.SenderIdentity
	defaultAddress string
	defaultReplyTo string
	platformEn     string
	platformAr     string
}

func NewResolver(cfg config.NotificationConfig) *Resolver {
	r := &Resolver{
		table:          make(map[string]map[string]models.SenderIdentity, len(cfg.Senders)),
		defaultAddress: cfg.DefaultFromAddress,
		defaultReplyTo: cfg.DefaultReplyTo,
		platformEn:     cfg.PlatformName,
		platformAr:     cfg.PlatformNameAr,
	}
	if r.platformAr == "" {
		r.platformAr = r.platformEn
	}

	for notificationType, byLang := range cfg.Senders {
		entries := make(map[string]models.SenderIdentity, len(byLang))
		for lang, e := range byLang {
			if e.DisplayName == "" {
				continue
			}
			id := models.SenderIdentity{
				DisplayName:  e.DisplayName,
				EmailAddress: e.Address,
				ReplyTo:      e.ReplyTo,
			}
			if id.EmailAddress == "" {
				id.EmailAddress = r.defaultAddress
			}
			if id.ReplyTo == "" {
				id.ReplyTo = r.defaultReplyTo
			}
			entries[lang] = id
		}
		r.table[notificationType] = entries
	}
	return r
}

// Resolve never fails; unknown types or languages get the generic identity.
func (r *Resolver) Resolve(notificationType, language string) models.SenderIdentity {
	if id, ok := r.table[notificationType][language]; ok {
		return id
	}
	return r.Generic(language)
}

func (r *Resolver) Generic(language string) models.SenderIdentity {
	name := r.platformEn + " | " + genericSuffixEn
	if language == models.LanguageArabic {
		name = r.platformAr + " | " + genericSuffixAr
	}
	return models.SenderIdentity{
		DisplayName:  name,
		EmailAddress: r.defaultAddress,
		ReplyTo:      r.defaultReplyTo,
	}
}
