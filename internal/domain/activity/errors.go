package activity

import "errors"

var (
	// Activity errors
	ErrActivityNotFound = errors.New("activity not found")
	ErrInvalidKind      = errors.New("activity kind must be 'single_day' or 'multi_day'")

	// Registration errors
	ErrNotRegistered       = errors.New("you are not registered for this activity")
	ErrRegistrationPending = errors.New("your registration has not been approved yet")
)
