package repository

import "github.com/noah-isme/exam-market-api/internal/models"

// Per-variant schema mapping. Tests and courses share a lifecycle shape but
// live in separate tables with their own registration ledgers.
func itemTable(t models.ItemType) string {
	if t == models.ItemTypeCourse {
		return "courses"
	}
	return "tests"
}

func registrationTable(t models.ItemType) string {
	if t == models.ItemTypeCourse {
		return "course_registrations"
	}
	return "test_registrations"
}

func itemColumn(t models.ItemType) string {
	if t == models.ItemTypeCourse {
		return "course_id"
	}
	return "test_id"
}

func registeredAtColumn(t models.ItemType) string {
	if t == models.ItemTypeCourse {
		return "enrolled_at"
	}
	return "applied_at"
}

// InitialRegistrationStatus returns the status a fresh registration carries:
// applied for tests, enrolled for courses.
func InitialRegistrationStatus(t models.ItemType) models.RegistrationStatus {
	if t == models.ItemTypeCourse {
		return models.RegistrationStatusEnrolled
	}
	return models.RegistrationStatusApplied
}
