package models

import "errors"

// Error taxonomy shared by the DB layer, the attendance service, and the
// API handlers. Rejected intents always surface one of these; the engine
// never silently clamps or drops a request.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrCounterNotFound = errors.New("area counter not found")
	ErrEventLocked     = errors.New("event is locked")
	ErrNegativeCount   = errors.New("count cannot be negative")
	ErrUnknownAction   = errors.New("unknown count action")
)
