package session

import "fmt"

const (
	CodeValidation   = "VALIDATION"
	CodeNoRobot      = "NO_ROBOT"
	CodeNotConnected = "NOT_CONNECTED"
	CodeDialFailed   = "DIAL_FAILED"
	CodeSendFailed   = "SEND_FAILED"
	CodeNotFound     = "NOT_FOUND"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Is matches any CodedError carrying the same code, so callers can compare against
// the sentinels below with errors.Is.
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	return ok && t.Code == e.Code
}

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

var (
	// ErrNoRobot is returned when an operation needs a selected robot and none is.
	ErrNoRobot = &CodedError{Code: CodeNoRobot, Message: "no robot selected"}
	// ErrNotConnected is returned when the socket is not open.
	ErrNotConnected = &CodedError{Code: CodeNotConnected, Message: "socket is not open"}
)
