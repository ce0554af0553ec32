package errors

// Error codes for categorizing errors.
// These codes are machine-readable reasons surfaced by the operational API.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeTimeout indicates an operation timed out.
	CodeTimeout = "TIMEOUT"

	// CodeRateLimit indicates a provider rate limit was exceeded.
	CodeRateLimit = "RATE_LIMIT_EXCEEDED"

	// CodeAuthFailure indicates a provider rejected our credentials.
	CodeAuthFailure = "AUTH_FAILURE"

	// CodeServiceUnavailable indicates a downstream service is unavailable.
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Domain-specific error codes

	// CodeConfirmationRequired indicates a destructive call lacked its confirmation.
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"

	// CodeNoReplicas indicates not a single provider accepted the content.
	CodeNoReplicas = "NO_REPLICAS"

	// CodePartialReplication indicates fewer replicas than the target were achieved.
	CodePartialReplication = "PARTIAL_REPLICATION"

	// CodeConflict indicates the target already exists in a state that forbids the call.
	CodeConflict = "CONFLICT"

	// CodeStorageError indicates the record store failed.
	CodeStorageError = "STORAGE_ERROR"

	// CodeConfigError indicates a configuration error.
	CodeConfigError = "CONFIG_ERROR"
)

// IsRetryable returns true if an error with the given code should be retried.
func IsRetryable(code string) bool {
	switch code {
	case CodeTimeout, CodeRateLimit, CodeServiceUnavailable,
		CodeStorageError, CodePartialReplication:
		return true
	default:
		return false
	}
}
