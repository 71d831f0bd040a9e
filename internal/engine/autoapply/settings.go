package autoapply

import (
	"time"
)

// Settings defaults, applied when a user has no stored row or left a
// field zero-valued.
const (
	DefaultMinMatchScore  = 0.75
	DefaultMaxDaily       = 3
	DefaultMaxPerCompany  = 1
	DefaultMinDaysBetween = 30
)

// DefaultSettings returns the configuration a user starts with: three
// applications a day, 0.75 score floor, manual approval on, window open
// around the clock.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:                userID,
		Enabled:               false,
		MaxDaily:              DefaultMaxDaily,
		MaxPerCompany:         DefaultMaxPerCompany,
		MinDaysBetween:        DefaultMinDaysBetween,
		WindowStartHour:       0,
		WindowEndHour:         23,
		MinMatchScore:         DefaultMinMatchScore,
		RequireManualApproval: true,
		NotifyOnMatch:         true,
		NotifyOnSubmit:        true,
	}
}

// Normalize fills zero values with defaults and clamps the window hours
// into 0-23 so a partially filled settings row behaves sanely.
func (s Settings) Normalize() Settings {
	if s.MaxDaily <= 0 {
		s.MaxDaily = DefaultMaxDaily
	}
	if s.MaxPerCompany <= 0 {
		s.MaxPerCompany = DefaultMaxPerCompany
	}
	if s.MinDaysBetween <= 0 {
		s.MinDaysBetween = DefaultMinDaysBetween
	}
	if s.MinMatchScore <= 0 {
		s.MinMatchScore = DefaultMinMatchScore
	}
	if s.WindowStartHour < 0 || s.WindowStartHour > 23 {
		s.WindowStartHour = 0
	}
	if s.WindowEndHour <= 0 || s.WindowEndHour > 23 {
		s.WindowEndHour = 23
	}
	return s
}

// InWindow reports whether now falls inside the user's application
// window. Hours are inclusive on both ends; a start after the end wraps
// past midnight (22 → 6 means evening and night). Empty WindowDays means
// every day of the week.
func (s Settings) InWindow(now time.Time) bool {
	h := now.Hour()
	if s.WindowStartHour <= s.WindowEndHour {
		if h < s.WindowStartHour || h > s.WindowEndHour {
			return false
		}
	} else {
		if h < s.WindowStartHour && h > s.WindowEndHour {
			return false
		}
	}
	if len(s.WindowDays) == 0 {
		return true
	}
	wd := int(now.Weekday())
	for _, d := range s.WindowDays {
		if d == wd {
			return true
		}
	}
	return false
}

// BuildCriteria derives the immutable per-cycle matching criteria from a
// user's stored settings.
func BuildCriteria(s Settings) Criteria {
	s = s.Normalize()
	return Criteria{
		MinMatchScore:      s.MinMatchScore,
		MaxDailyApps:       s.MaxDaily,
		PreferredLocations: s.PreferredLocations,
		RequiredSkills:     s.RequiredSkills,
		ExcludedCompanies:  s.ExcludedCompanies,
		ExcludedKeywords:   s.ExcludedKeywords,
		SalaryMin:          s.SalaryMin,
		SalaryMax:          s.SalaryMax,
		RemoteOnly:         s.RemoteOnly,
		ExperienceMatch:    true,
	}
}
