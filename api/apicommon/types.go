package apicommon

import (
	"encoding/json"
	"time"

	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/emitter"
	"github.com/infinityplans/portal/records"
)

// LoginResponse is the response of the login and refresh endpoints.
type LoginResponse struct {
	Token    string         `json:"token"`
	Expirity time.Time      `json:"expirity"`
	Identity *auth.Identity `json:"identity,omitempty"`
}

// FirebaseLoginRequest exchanges a Firebase ID token for an API token.
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// RegisterRequest creates a member account and its profile.
type RegisterRequest struct {
	Email        string               `json:"email" validate:"required,email"`
	Password     string               `json:"password" validate:"required,min=8"`
	Mobile       string               `json:"mobile,omitempty" validate:"omitempty,phone"`
	Admin        bool                 `json:"admin,omitempty"`
	PersonalInfo records.PersonalInfo `json:"personal_info"`
}

// RegisterResponse returns the new registration id.
type RegisterResponse struct {
	RegistrationID string               `json:"registrationId"`
	Profile        *records.UserProfile `json:"profile"`
}

// PasswordRecoveryRequest asks for a password reset code or link. With BySMS
// the code goes to the mobile number of the profile.
type PasswordRecoveryRequest struct {
	Email string `json:"email" validate:"required,email"`
	BySMS bool   `json:"bySms,omitempty"`
}

// PasswordResetRequest sets a new password with a reset code.
type PasswordResetRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// ChangePasswordRequest changes the password of the signed-in account. The
// current password is required to reauthenticate.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// ContactRequest is a message sent through the public contact form.
type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,phone"`
	Message string `json:"message" validate:"required,max=5000"`
}

// UserSearchResponse lists the profiles found by an admin search.
type UserSearchResponse struct {
	Users []*records.UserProfile `json:"users"`
}

// RecordResponse is a record as stored, along with the state of the
// editor that produced it.
type RecordResponse struct {
	Kind   records.Kind `json:"kind"`
	Exists bool         `json:"exists"`
	Path   string       `json:"path,omitempty"`
	Status string       `json:"status,omitempty"`
	Record any          `json:"record"`
}

// AddEntryResponse returns the id given to a new statement or item.
type AddEntryResponse struct {
	ID     records.ItemID `json:"id"`
	Record any            `json:"record"`
}

// DocumentsResponse lists the uploaded documents of a member.
type DocumentsResponse struct {
	Documents []*records.Document `json:"documents"`
}

// SessionResponse is the combined session state.
type SessionResponse struct {
	User        *auth.Identity       `json:"user"`
	Profile     *records.UserProfile `json:"profile"`
	IsAdminView bool                 `json:"isAdminView"`
	Error       string               `json:"error,omitempty"`
}

// WatchEvent is one server-sent event of a watch stream.
type WatchEvent struct {
	Loading bool            `json:"loading"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// DiagnosticsResponse lists the recent permission errors.
type DiagnosticsResponse struct {
	Errors []*emitter.PermissionError `json:"errors"`
}

// FixtureResponse reports a replaced fixture file.
type FixtureResponse struct {
	Name  string `json:"name"`
	Paths int    `json:"paths"`
}
