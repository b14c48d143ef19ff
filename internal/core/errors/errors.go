package errors

const (
	HttpInternalError           = "internal_error"
	HttpInvalidInputError       = "invalid_input"
	HttpUnknownControlTypeError = "unknown_control_type"
	HttpOverLimitError          = "over_limit"
	HttpUnavailableError        = "unavailable"
	HttpInconsistentError       = "inconsistent"
)

// ErrorResponse is the error response body for charge and delivery-control errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
