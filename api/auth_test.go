package api

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/errors"
)

var resetCodeRgx = regexp.MustCompile(`reset code is: (\d+)`)

func TestLogin(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)

	// malformed body and invalid email
	_, code := ta.request(http.MethodPost, "", authLoginEndpoint, []byte("{"))
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	_, code = ta.request(http.MethodPost, "", authLoginEndpoint,
		auth.Credentials{Email: "not-an-email", Password: adminPass})
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// wrong password
	data, code := ta.request(http.MethodPost, "", authLoginEndpoint,
		auth.Credentials{Email: adminEmail, Password: "wrong-password"})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrInvalidCredentials.Code)

	var res apicommon.LoginResponse
	ta.requestAndParse(http.MethodPost, "", authLoginEndpoint,
		auth.Credentials{Email: adminEmail, Password: adminPass}, http.StatusOK, &res)
	c.Assert(res.Token, qt.Not(qt.Equals), "")
	c.Assert(res.Identity.RegistrationID, qt.Equals, adminRegID)
	c.Assert(res.Identity.Admin, qt.IsTrue)

	// the Firebase exchange is not available with local accounts
	_, code = ta.request(http.MethodPost, "", authFirebaseEndpoint,
		&apicommon.FirebaseLoginRequest{IDToken: "token"})
	c.Assert(code, qt.Equals, http.StatusBadRequest)
}

func TestTokenLifecycle(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)

	// protected routes require a token
	data, code := ta.request(http.MethodGet, "", sessionEndpoint, nil)
	c.Assert(code, qt.Equals, http.StatusUnauthorized, qt.Commentf("%s", data))
	_, code = ta.request(http.MethodGet, "not-a-token", sessionEndpoint, nil)
	c.Assert(code, qt.Equals, http.StatusUnauthorized)

	token := ta.adminToken()
	var refreshed apicommon.LoginResponse
	ta.requestAndParse(http.MethodPost, token, authRefreshTokenEndpoint, nil, http.StatusOK, &refreshed)
	c.Assert(refreshed.Token, qt.Not(qt.Equals), "")
	c.Assert(refreshed.Identity.RegistrationID, qt.Equals, adminRegID)
	c.Assert(refreshed.Identity.Admin, qt.IsTrue)

	// logout revokes only the token used
	ta.requestAndParse(http.MethodPost, token, authLogoutEndpoint, nil, http.StatusOK, nil)
	data, code = ta.request(http.MethodGet, token, sessionEndpoint, nil)
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrUnauthorized.Code)
	ta.requestAndParse(http.MethodGet, refreshed.Token, sessionEndpoint, nil, http.StatusOK, nil)
}

func TestChangePassword(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	regID := ta.registerMember(ta.adminToken(), memberEmail, memberPass, "Asha")
	c.Assert(regID, qt.Equals, "INF001")
	token := ta.login(memberEmail, memberPass)

	// the current password is checked
	_, code := ta.request(http.MethodPut, token, authPasswordEndpoint, &apicommon.ChangePasswordRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "new-password",
	})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	// too short
	_, code = ta.request(http.MethodPut, token, authPasswordEndpoint, &apicommon.ChangePasswordRequest{
		CurrentPassword: memberPass,
		NewPassword:     "short",
	})
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	ta.requestAndParse(http.MethodPut, token, authPasswordEndpoint, &apicommon.ChangePasswordRequest{
		CurrentPassword: memberPass,
		NewPassword:     "new-password",
	}, http.StatusOK, nil)
	_, code = ta.request(http.MethodPost, "", authLoginEndpoint,
		auth.Credentials{Email: memberEmail, Password: memberPass})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	ta.login(memberEmail, "new-password")
}

func TestPasswordRecovery(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	ta.registerMember(ta.adminToken(), memberEmail, memberPass, "Asha")

	// unknown emails get the same answer and no mail
	sentBefore := len(ta.outbox.Sent())
	ta.requestAndParse(http.MethodPost, "", authRecoveryEndpoint,
		&apicommon.PasswordRecoveryRequest{Email: "nobody@example.com"}, http.StatusOK, nil)
	c.Assert(ta.outbox.Sent(), qt.HasLen, sentBefore)

	ta.requestAndParse(http.MethodPost, "", authRecoveryEndpoint,
		&apicommon.PasswordRecoveryRequest{Email: memberEmail}, http.StatusOK, nil)
	body, err := ta.outbox.FindEmail(context.Background(), memberEmail)
	c.Assert(err, qt.IsNil)
	c.Assert(body, qt.Contains, "Hello Asha")
	c.Assert(body, qt.Contains, testWebApp+"/account/password/reset?")
	match := resetCodeRgx.FindStringSubmatch(body)
	c.Assert(match, qt.HasLen, 2, qt.Commentf("%s", body))
	resetCode := match[1]

	wrong := "00000000"
	if resetCode == wrong {
		wrong = "11111111"
	}
	data, code := ta.request(http.MethodPost, "", authResetEndpoint, &apicommon.PasswordResetRequest{
		Email:       memberEmail,
		Code:        wrong,
		NewPassword: "new-password",
	})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrResetCodeInvalid.Code)

	ta.requestAndParse(http.MethodPost, "", authResetEndpoint, &apicommon.PasswordResetRequest{
		Email:       memberEmail,
		Code:        resetCode,
		NewPassword: "new-password",
	}, http.StatusOK, nil)
	ta.login(memberEmail, "new-password")

	// SMS is only used when the member has a mobile number
	ta.requestAndParse(http.MethodPost, "", authRecoveryEndpoint,
		&apicommon.PasswordRecoveryRequest{Email: memberEmail, BySMS: true}, http.StatusOK, nil)
	c.Assert(ta.sms.Sent(), qt.HasLen, 0)
}

func TestPasswordRecoveryBySMS(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	ta.requestAndParse(http.MethodPost, ta.adminToken(), usersEndpoint, &apicommon.RegisterRequest{
		Email:    memberEmail,
		Password: memberPass,
		Mobile:   "+91 98765 43210",
	}, http.StatusOK, nil)

	ta.requestAndParse(http.MethodPost, "", authRecoveryEndpoint,
		&apicommon.PasswordRecoveryRequest{Email: memberEmail, BySMS: true}, http.StatusOK, nil)
	sent := ta.sms.Sent()
	c.Assert(sent, qt.HasLen, 1)
	c.Assert(sent[0].ToNumber, qt.Equals, "+919876543210")
	c.Assert(sent[0].PlainBody, qt.Matches, `Your password reset code is \d{8}`)
}
