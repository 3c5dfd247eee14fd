package domain

import "errors"

var (
	// ErrSignatureInvalid rejects a webhook whose provider signature does
	// not verify. The only error class that surfaces as a non-200.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrUserNotFound: the sender's number is not a known, verified user.
	// Policy is to drop silently, never to answer.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoActiveGoal: the user has no active spending goal.
	ErrNoActiveGoal = errors.New("no active spending goal")

	// ErrDuplicateMessage: this provider message id was already processed.
	ErrDuplicateMessage = errors.New("duplicate inbound message")

	// ErrOptedOut: the destination user has opted out of SMS.
	ErrOptedOut = errors.New("user has opted out")
)
