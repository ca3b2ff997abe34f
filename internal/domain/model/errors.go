package model

import "errors"

// ErrInvalidState is returned when a timer operation is not allowed in the
// slot's current state, e.g. reassigning a running timer.
var ErrInvalidState = errors.New("invalid timer state")

// ErrInvalidSlot is returned for a slot index outside the timer set or a
// non-positive slot count.
var ErrInvalidSlot = errors.New("invalid timer slot")

// ErrPersistenceCorrupt is returned when a persisted issue snapshot blob
// cannot be decoded (truncated, foreign, or written by another schema version).
var ErrPersistenceCorrupt = errors.New("persisted issue data corrupt")
