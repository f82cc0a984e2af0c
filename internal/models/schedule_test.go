package models

import (
	"testing"
	"time"
)

func TestWateringSchedule_Valid(t *testing.T) {
	cases := []struct {
		name string
		s    WateringSchedule
		want bool
	}{
		{name: "hourly", s: WateringSchedule{IntervalHours: 1, DurationMS: 2000}, want: true},
		{name: "one day run", s: WateringSchedule{IntervalDays: 1, DurationMS: MaxDurationMS}, want: true},
		{name: "run over a day", s: WateringSchedule{IntervalDays: 1, DurationMS: MaxDurationMS + 1}, want: false},
		{name: "duration wraps", s: WateringSchedule{IntervalDays: 1, DurationMS: 10_000_000_000_000}, want: false},
		{name: "no interval", s: WateringSchedule{DurationMS: 1000}, want: false},
		{name: "negative hours", s: WateringSchedule{IntervalDays: 1, IntervalHours: -1, DurationMS: 1000}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.Valid(); got != tc.want {
				t.Fatalf("Valid()=%v want %v", got, tc.want)
			}
		})
	}
	if d := (WateringSchedule{DurationMS: MaxDurationMS}).Duration(); d != 24*time.Hour {
		t.Fatalf("Duration()=%v", d)
	}
}
