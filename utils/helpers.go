package utils

// IsValidInterval guards the toStartOf<interval> interpolation in the
// event-count queries against arbitrary input.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}
