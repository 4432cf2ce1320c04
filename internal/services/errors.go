package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

// FetchError means sessions or enrollments could not be read. The previous
// snapshot stays published.
type FetchError struct{ Err error }

func (e *FetchError) Error() string { return fmt.Sprintf("failed to fetch study data: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError means a goal update or session tracking call failed. No local
// state was changed.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("failed to %s: %v", e.Op, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }
