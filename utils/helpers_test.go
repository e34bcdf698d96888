package utils

import "testing"

func TestIsValidInterval(t *testing.T) {
	for _, valid := range []string{"Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year"} {
		if !IsValidInterval(valid) {
			t.Errorf("IsValidInterval(%q) = false, want true", valid)
		}
	}
	for _, invalid := range []string{"", "day", "Second", "Day; DROP TABLE funnel_events"} {
		if IsValidInterval(invalid) {
			t.Errorf("IsValidInterval(%q) = true, want false", invalid)
		}
	}
}
