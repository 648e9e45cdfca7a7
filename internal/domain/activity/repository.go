package activity

import "context"

// RegistrationSource supplies activity definitions and the registered (day, slot) set of a student.
// The check-in engine only reads through it; authoring and approval of registrations live elsewhere.
type RegistrationSource interface {
	// GetActivity retrieves an activity with its slots, locations and raw schedule
	GetActivity(ctx context.Context, activityID string) (Activity, error)

	// GetRegistration retrieves the registration of userID for activityID.
	// Returns ErrNotRegistered when no registration exists.
	GetRegistration(ctx context.Context, activityID string, userID string) (Registration, error)
}
