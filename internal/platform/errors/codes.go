// Package errors provides structured error handling for instance lifecycle operations.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Configuration errors
	CodeConfigInvalid Code = "CONFIG_INVALID"

	// Setup errors
	CodeSetupFailed             Code = "SETUP_FAILED"
	CodeProviderNotConfigured   Code = "PROVIDER_NOT_CONFIGURED"
	CodeUnsupportedProvider     Code = "UNSUPPORTED_PROVIDER"
	CodeAdminCredentialsMissing Code = "ADMIN_CREDENTIALS_MISSING"
	CodeUpdateAborted           Code = "UPDATE_ABORTED"
	CodeAlreadyConfigured       Code = "ALREADY_CONFIGURED"

	// User errors
	CodeUserEmptyUsername   Code = "USER_EMPTY_USERNAME"
	CodeUserInvalidUsername Code = "USER_INVALID_USERNAME"
	CodeUserWeakPassword    Code = "USER_WEAK_PASSWORD"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// HTTPStatus maps domain codes to HTTP status codes for the setup endpoints.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeConfigInvalid,
		CodeAdminCredentialsMissing,
		CodeProviderNotConfigured,
		CodeUnsupportedProvider,
		CodeUserEmptyUsername,
		CodeUserInvalidUsername,
		CodeUserWeakPassword:
		return http.StatusBadRequest

	case CodeAlreadyConfigured,
		CodeAlreadyExists:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
