package autoapply

import (
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("u1")
	if s.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", s.UserID)
	}
	if s.Enabled {
		t.Error("new settings should start disabled")
	}
	if s.MaxDaily != DefaultMaxDaily {
		t.Errorf("MaxDaily = %d, want %d", s.MaxDaily, DefaultMaxDaily)
	}
	if s.MinMatchScore != DefaultMinMatchScore {
		t.Errorf("MinMatchScore = %v, want %v", s.MinMatchScore, DefaultMinMatchScore)
	}
	if !s.RequireManualApproval {
		t.Error("new settings should require manual approval")
	}
	if s.WindowStartHour != 0 || s.WindowEndHour != 23 {
		t.Errorf("window = %d-%d, want 0-23", s.WindowStartHour, s.WindowEndHour)
	}
}

func TestNormalize(t *testing.T) {
	s := Settings{UserID: "u1", WindowStartHour: -3, WindowEndHour: 40}.Normalize()
	if s.MaxDaily != DefaultMaxDaily {
		t.Errorf("MaxDaily = %d, want default %d", s.MaxDaily, DefaultMaxDaily)
	}
	if s.MaxPerCompany != DefaultMaxPerCompany {
		t.Errorf("MaxPerCompany = %d, want default %d", s.MaxPerCompany, DefaultMaxPerCompany)
	}
	if s.MinDaysBetween != DefaultMinDaysBetween {
		t.Errorf("MinDaysBetween = %d, want default %d", s.MinDaysBetween, DefaultMinDaysBetween)
	}
	if s.MinMatchScore != DefaultMinMatchScore {
		t.Errorf("MinMatchScore = %v, want default %v", s.MinMatchScore, DefaultMinMatchScore)
	}
	if s.WindowStartHour != 0 || s.WindowEndHour != 23 {
		t.Errorf("window = %d-%d, want clamped to 0-23", s.WindowStartHour, s.WindowEndHour)
	}

	keep := Settings{MaxDaily: 5, MaxPerCompany: 2, MinDaysBetween: 14, MinMatchScore: 0.6,
		WindowStartHour: 9, WindowEndHour: 18}.Normalize()
	if keep.MaxDaily != 5 || keep.MaxPerCompany != 2 || keep.MinDaysBetween != 14 {
		t.Errorf("Normalize overwrote explicit values: %+v", keep)
	}
	if keep.WindowStartHour != 9 || keep.WindowEndHour != 18 {
		t.Errorf("Normalize overwrote explicit window: %d-%d", keep.WindowStartHour, keep.WindowEndHour)
	}
}

func at(hour int, weekday time.Weekday) time.Time {
	// 2026-08-03 is a Monday.
	base := time.Date(2026, 8, 3, hour, 30, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(weekday-time.Monday))
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		now  time.Time
		want bool
	}{
		{"all day", Settings{WindowStartHour: 0, WindowEndHour: 23}, at(3, time.Sunday), true},
		{"inside business hours", Settings{WindowStartHour: 9, WindowEndHour: 18}, at(12, time.Tuesday), true},
		{"start hour inclusive", Settings{WindowStartHour: 9, WindowEndHour: 18}, at(9, time.Tuesday), true},
		{"end hour inclusive", Settings{WindowStartHour: 9, WindowEndHour: 18}, at(18, time.Tuesday), true},
		{"before open", Settings{WindowStartHour: 9, WindowEndHour: 18}, at(8, time.Tuesday), false},
		{"after close", Settings{WindowStartHour: 9, WindowEndHour: 18}, at(19, time.Tuesday), false},
		{"wrap evening", Settings{WindowStartHour: 22, WindowEndHour: 6}, at(23, time.Friday), true},
		{"wrap after midnight", Settings{WindowStartHour: 22, WindowEndHour: 6}, at(2, time.Friday), true},
		{"wrap gap", Settings{WindowStartHour: 22, WindowEndHour: 6}, at(12, time.Friday), false},
		{
			"weekday allowed",
			Settings{WindowEndHour: 23, WindowDays: []int{int(time.Monday), int(time.Wednesday)}},
			at(12, time.Wednesday), true,
		},
		{
			"weekday blocked",
			Settings{WindowEndHour: 23, WindowDays: []int{int(time.Monday), int(time.Wednesday)}},
			at(12, time.Saturday), false,
		},
		{
			"weekday blocked even inside hours",
			Settings{WindowStartHour: 9, WindowEndHour: 18, WindowDays: []int{int(time.Monday)}},
			at(12, time.Tuesday), false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.InWindow(tt.now); got != tt.want {
				t.Errorf("InWindow(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestBuildCriteria(t *testing.T) {
	min := 90000
	s := Settings{
		UserID:            "u1",
		MaxDaily:          5,
		MinMatchScore:     0.6,
		RequiredSkills:    []string{"go"},
		ExcludedCompanies: []string{"Meta"},
		ExcludedKeywords:  []string{"crypto"},
		RemoteOnly:        true,
		SalaryMin:         &min,
	}
	c := BuildCriteria(s)
	if c.MinMatchScore != 0.6 {
		t.Errorf("MinMatchScore = %v, want 0.6", c.MinMatchScore)
	}
	if c.MaxDailyApps != 5 {
		t.Errorf("MaxDailyApps = %d, want 5", c.MaxDailyApps)
	}
	if len(c.RequiredSkills) != 1 || c.RequiredSkills[0] != "go" {
		t.Errorf("RequiredSkills = %v", c.RequiredSkills)
	}
	if !c.RemoteOnly {
		t.Error("RemoteOnly not carried over")
	}
	if c.SalaryMin == nil || *c.SalaryMin != 90000 {
		t.Errorf("SalaryMin = %v", c.SalaryMin)
	}
	if !c.ExperienceMatch {
		t.Error("ExperienceMatch should default on")
	}

	zero := BuildCriteria(Settings{UserID: "u1"})
	if zero.MinMatchScore != DefaultMinMatchScore {
		t.Errorf("zero settings MinMatchScore = %v, want normalized default", zero.MinMatchScore)
	}
	if zero.MaxDailyApps != DefaultMaxDaily {
		t.Errorf("zero settings MaxDailyApps = %d, want normalized default", zero.MaxDailyApps)
	}
}
