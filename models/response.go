package models

// Result is the uniform shape returned by every payment, credit and referral endpoint
type Result struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	ErrorKind ErrorKind   `json:"errorKind,omitempty"`
	Message   string      `json:"message,omitempty"`
	Action    Action      `json:"action,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// OK wraps data in a successful result
func OK(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Failure converts an error into a failed result
func Failure(err error) Result {
	appErr := AsAppError(err)
	msg := appErr.Message
	if appErr.Kind == ErrInternal {
		// internal causes stay in the logs
		msg = "internal error"
	}
	return Result{
		Success:   false,
		ErrorKind: appErr.Kind,
		Message:   msg,
		Action:    appErr.Action(),
		Retryable: appErr.Retryable(),
	}
}
