package cron

import (
	"fmt"
	"strconv"
	"strings"
)

var weekdayNames = [7]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// Describe renders a human-readable summary for the common schedule
// shapes. Anything it has no template for falls back to the raw
// expression.
func Describe(s Schedule) string {
	min, minN := s.Minute, -1
	if n, err := strconv.Atoi(s.Minute); err == nil {
		minN = n
	}
	hourN := -1
	if n, err := strconv.Atoi(s.Hour); err == nil {
		hourN = n
	}

	allDays := s.Day == "*" && s.Month == "*" && s.Weekday == "*"

	switch {
	case s.Minute == "*" && s.Hour == "*" && allDays:
		return "Every minute"

	case strings.HasPrefix(min, "*/") && s.Hour == "*" && allDays:
		n, err := strconv.Atoi(min[2:])
		if err == nil {
			if n == 1 {
				return "Every minute"
			}
			return fmt.Sprintf("Every %d minutes", n)
		}

	case minN == 0 && strings.HasPrefix(s.Hour, "*/") && allDays:
		n, err := strconv.Atoi(s.Hour[2:])
		if err == nil {
			if n == 1 {
				return "Every hour"
			}
			return fmt.Sprintf("Every %d hours", n)
		}

	case minN >= 0 && s.Hour == "*" && allDays:
		if minN == 0 {
			return "Every hour"
		}
		return fmt.Sprintf("Hourly at minute %d", minN)

	case minN >= 0 && hourN >= 0 && allDays:
		return fmt.Sprintf("Daily at %02d:%02d", hourN, minN)

	case minN >= 0 && hourN >= 0 && s.Day == "*" && s.Month == "*":
		if wd, err := strconv.Atoi(s.Weekday); err == nil && wd >= 0 && wd <= 6 {
			return fmt.Sprintf("Weekly on %s at %02d:%02d", weekdayNames[wd], hourN, minN)
		}

	case minN >= 0 && hourN >= 0 && s.Month == "*" && s.Weekday == "*":
		if dom, err := strconv.Atoi(s.Day); err == nil {
			return fmt.Sprintf("Monthly on day %d at %02d:%02d", dom, hourN, minN)
		}
	}

	return s.String()
}
