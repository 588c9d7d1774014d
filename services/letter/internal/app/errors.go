package app

import "errors"

// Messages on these errors are shown to clients as-is.
var (
	ErrIDTokenRequired         = errors.New("ID token is required")
	ErrEmailAndIDTokenRequired = errors.New("Email and ID token are required")
	ErrEmailMismatch           = errors.New("Email does not match ID token email.")
	ErrInvalidIDToken          = errors.New("Invalid ID token")
	ErrUserNotFound            = errors.New("User does not exist")
	ErrUserExists              = errors.New("User already exists")

	ErrTokenRequired = errors.New("Token is missing!")
	ErrUnknownToken  = errors.New("Invalid token")
	ErrForbidden     = errors.New("Token does not belong to this user")

	ErrSessionIDRequired  = errors.New("Session ID not provided")
	ErrDraftValueRequired = errors.New("draft value required")
	ErrNoFilePart         = errors.New("No file part")
	ErrNoSelectedFile     = errors.New("No selected file")
	ErrInvalidFileFormat  = errors.New("Invalid file format")

	// Upstream failures. Causes are logged, never returned to clients.
	ErrExtractionFailed = errors.New("Failed to extract text from resume")
	ErrGenerationFailed = errors.New("Error generating cover letter")
)
