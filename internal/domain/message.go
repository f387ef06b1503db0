package domain

// ErrorMessage is the payload published or returned when an operation fails
// in a way that must be surfaced. Errors are kept in the order they occurred.
type ErrorMessage struct {
	Type   string   `json:"type"`
	Errors []string `json:"errors"`
}

// MessageTypeError is the type tag of ErrorMessage payloads.
const MessageTypeError = "error"

// NewErrorMessage builds an error payload from one or more messages.
func NewErrorMessage(errs ...string) ErrorMessage {
	m := ErrorMessage{Type: MessageTypeError, Errors: make([]string, 0, len(errs))}
	m.Errors = append(m.Errors, errs...)
	return m
}

// ErrorMessageFrom builds an error payload from Go errors, skipping nils.
func ErrorMessageFrom(errs ...error) ErrorMessage {
	m := NewErrorMessage()
	for _, err := range errs {
		if err != nil {
			m.Errors = append(m.Errors, err.Error())
		}
	}
	return m
}
