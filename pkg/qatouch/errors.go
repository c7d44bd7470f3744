package qatouch

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client and the packages built on it.
var (
	// ErrConfiguration is returned when credentials or client settings are
	// missing or invalid. It is always returned before any network call.
	ErrConfiguration = errors.New("qatouch configuration error")

	// ErrInvalidStatus is returned for a status outside passed, skipped and failed.
	ErrInvalidStatus = errors.New("invalid test status")

	// ErrInvalidCaseID is returned for a test case id that is not a positive integer.
	ErrInvalidCaseID = errors.New("invalid test case id")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassService represents a 200 response that reports failure
	// (success=false, or no data).
	ErrorClassService ErrorClass = "service"

	// ErrorClassMalformed represents a 200 response whose body could not be
	// understood.
	ErrorClassMalformed ErrorClass = "malformed"
)

// RequestError represents a failed QA Touch request.
type RequestError struct {
	Endpoint   string
	Method     string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	prefix := fmt.Sprintf("qatouch %s %s", e.Method, e.Endpoint)

	switch e.Class {
	case ErrorClassClient, ErrorClassServer:
		return fmt.Sprintf("%s: expected status 200 but got %d (%s); check domain and token",
			prefix, e.StatusCode, e.Message)
	case ErrorClassService:
		return fmt.Sprintf("%s: request failed: %s; check domain, token and keys", prefix, e.Message)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s error: %s: %v", prefix, e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %s", prefix, e.Class, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	if statusCode >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}
