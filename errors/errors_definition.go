// Package errors provides the API error type and the list of error codes
// returned by the portal backend.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the user's fault, and they return
// an HTTP status in the 4xx range. Error codes 50001-59999 are the server's
// fault.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXXX or 5XXXX. Gaps belong to retired errors and must not
// be reused.
var (
	// Authentication and authorization errors
	ErrUnauthorized       = Error{Code: 40001, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("authentication required"), LogLevel: "info"}
	ErrInvalidCredentials = Error{Code: 40002, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid email or password"), LogLevel: "info"}
	ErrForbidden          = Error{Code: 40003, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("permission denied"), LogLevel: "info"}
	ErrAdminRequired      = Error{Code: 40004, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("administrator role required"), LogLevel: "info"}
	ErrResetCodeInvalid   = Error{Code: 40005, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("password reset code is invalid or expired"), LogLevel: "info"}

	// Validation errors
	ErrMalformedBody      = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid JSON request body")}
	ErrMalformedURLParam  = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid URL parameter")}
	ErrEmailMalformed     = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid email format")}
	ErrPasswordTooShort   = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("password must be at least 8 characters")}
	ErrInvalidUserData    = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid user information provided")}
	ErrInvalidRecordData  = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid record information provided")}
	ErrUnknownRecordKind  = Error{Code: 40016, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown record kind")}
	ErrUnknownSection     = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown profile section")}
	ErrStorageInvalidFile = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid file or upload parameters")}
	ErrNotSupported       = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("feature not supported")}
	ErrNoSearchCriteria   = Error{Code: 40020, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("registration id, email or mobile is required")}

	// Not found errors
	ErrUserNotFound     = Error{Code: 40030, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("user not found")}
	ErrRecordNotFound   = Error{Code: 40031, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("record not found")}
	ErrItemNotFound     = Error{Code: 40032, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("statement or item not found")}
	ErrFileNotFound     = Error{Code: 40033, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("file not found")}
	ErrFixtureNotFound  = Error{Code: 40034, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("fixture file not found")}
	ErrDocumentNotFound = Error{Code: 40035, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("document not found")}

	// Conflict errors
	ErrDuplicateConflict = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("resource already exists")}

	// Server errors
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	ErrInternalStorageError       = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: storage operation failed"), LogLevel: "error"}
	ErrNotificationFailure        = Error{Code: 50004, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: notification could not be sent"), LogLevel: "error"}
	ErrStreamingNotSupported      = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: streaming not supported"), LogLevel: "error"}
)
