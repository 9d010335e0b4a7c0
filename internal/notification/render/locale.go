package render

import (
	"fmt"
	"time"

	"notification-dispatch/internal/models"
)

var arabicMonths = [12]string{
	"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
	"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
}

var arabicWeekdays = [7]string{
	"الأحد", "الاثنين", "الثلاثاء", "الأربعاء", "الخميس", "الجمعة", "السبت",
}

// Formatted is a timestamp split into its displayed parts.
type Formatted struct {
	Date    string
	Time    string
	Weekday string
}

// FormatTimestamp always uses the Gregorian calendar. The weekday is derived
// from t itself rather than from the formatted date.
func FormatTimestamp(t time.Time, language string) Formatted {
	if language == models.LanguageArabic {
		period := "ص"
		if t.Hour() >= 12 {
			period = "م"
		}
		hour := t.Hour() % 12
		if hour == 0 {
			hour = 12
		}
		return Formatted{
			Date:    fmt.Sprintf("%d %s %d", t.Day(), arabicMonths[t.Month()-1], t.Year()),
			Time:    fmt.Sprintf("%d:%02d %s", hour, t.Minute(), period),
			Weekday: arabicWeekdays[t.Weekday()],
		}
	}

	return Formatted{
		Date:    t.Format("January 2, 2006"),
		Time:    t.Format("3:04 PM"),
		Weekday: t.Weekday().String(),
	}
}
