package calendar

import "strings"

// Event types understood by the calendar.
const (
	TypeDrugTesting  = "drug-testing"
	TypeConsultation = "consultation"
	TypeFollowUp     = "follow-up"
	TypeOther        = "other"
)

// Event statuses understood by the calendar.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	colorNoShow       = "#dc2626"
	colorScheduled    = "#3b82f6"
	colorCompleted    = "#10b981"
	colorCancelled    = "#8b5cf6"
	colorConsultation = "#f59e0b"
	colorFollowUp     = "#06b6d4"
	colorOther        = "#6366f1"
	colorUnknown      = "#6b7280"
)

// StatusColor returns the indicator color for an event. Only drug tests are
// colored by status; other types have a fixed color per type.
func StatusColor(eventType, status string, noShow bool) string {
	switch normalizeType(eventType) {
	case TypeDrugTesting:
		if noShow {
			return colorNoShow
		}
		switch status {
		case StatusCompleted:
			return colorCompleted
		case StatusCancelled:
			return colorCancelled
		default:
			return colorScheduled
		}
	case TypeConsultation:
		return colorConsultation
	case TypeFollowUp:
		return colorFollowUp
	case TypeOther:
		return colorOther
	}
	return colorUnknown
}

// StatusClass returns the style class matching StatusColor.
func StatusClass(eventType, status string, noShow bool) string {
	switch normalizeType(eventType) {
	case TypeDrugTesting:
		if noShow {
			return "status-no-show"
		}
		switch status {
		case StatusCompleted:
			return "status-completed"
		case StatusCancelled:
			return "status-cancelled"
		default:
			return "status-scheduled"
		}
	case TypeConsultation:
		return "type-consultation"
	case TypeFollowUp:
		return "type-followup"
	case TypeOther:
		return "type-other"
	}
	return "status-scheduled"
}

// TypeLabel returns the short display name of an event type.
func TypeLabel(eventType string) string {
	switch normalizeType(eventType) {
	case TypeDrugTesting:
		return "Drug Test"
	case TypeConsultation:
		return "Consult"
	case TypeFollowUp:
		return "Follow-up"
	case TypeOther:
		return "Other"
	}
	return eventType
}

var testAbbreviations = map[string]string{
	"urine":  "U",
	"hair":   "H",
	"saliva": "S",
	"blood":  "B",
	"breath": "BR",
	"oral":   "O",
}

// TestAbbreviation returns the badge text for a test type.
func TestAbbreviation(testType string) string {
	key := strings.ToLower(strings.TrimSpace(testType))
	if key == "" {
		return ""
	}
	if abbrev, ok := testAbbreviations[key]; ok {
		return abbrev
	}
	return strings.ToUpper(key[:1])
}

// normalizeType maps a missing type to drug-testing, the historical default.
func normalizeType(eventType string) string {
	if strings.TrimSpace(eventType) == "" {
		return TypeDrugTesting
	}
	return eventType
}
