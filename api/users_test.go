package api

import (
	"context"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/records"
)

func TestRegisterMember(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()

	var res apicommon.RegisterResponse
	ta.requestAndParse(http.MethodPost, admin, usersEndpoint, &apicommon.RegisterRequest{
		Email:    "Asha@Example.com",
		Password: memberPass,
		PersonalInfo: records.PersonalInfo{
			FirstName:   "Asha",
			LastName:    "Rao",
			DateOfBirth: "1990-04-12",
		},
	}, http.StatusOK, &res)
	c.Assert(res.RegistrationID, qt.Equals, "INF001")
	c.Assert(res.Profile.Email, qt.Equals, memberEmail)
	c.Assert(res.Profile.Role, qt.Equals, records.RoleMember)
	c.Assert(res.Profile.Status, qt.Equals, "active")
	c.Assert(res.Profile.UID, qt.Not(qt.Equals), "")
	c.Assert(res.Profile.PersonalInfo.DateOfBirth, qt.Equals, "1990-04-12")

	welcome, err := ta.outbox.FindEmail(context.Background(), memberEmail)
	c.Assert(err, qt.IsNil)
	c.Assert(welcome, qt.Contains, "INF001")

	// the member can sign in and gets its registration id in the token
	var login apicommon.LoginResponse
	ta.requestAndParse(http.MethodPost, "", authLoginEndpoint,
		map[string]string{"email": memberEmail, "password": memberPass}, http.StatusOK, &login)
	c.Assert(login.Identity.RegistrationID, qt.Equals, "INF001")
	c.Assert(login.Identity.Admin, qt.IsFalse)

	// duplicated email
	data, code := ta.request(http.MethodPost, admin, usersEndpoint, &apicommon.RegisterRequest{
		Email:    memberEmail,
		Password: memberPass,
	})
	c.Assert(code, qt.Equals, http.StatusConflict)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrDuplicateConflict.Code)

	// invalid date of birth
	_, code = ta.request(http.MethodPost, admin, usersEndpoint, &apicommon.RegisterRequest{
		Email:        "ravi@example.com",
		Password:     memberPass,
		PersonalInfo: records.PersonalInfo{DateOfBirth: "12/04/1990"},
	})
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// members cannot register other members
	data, code = ta.request(http.MethodPost, login.Token, usersEndpoint, &apicommon.RegisterRequest{
		Email:    "ravi@example.com",
		Password: memberPass,
	})
	c.Assert(code, qt.Equals, http.StatusForbidden)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrAdminRequired.Code)

	// ids keep increasing
	c.Assert(ta.registerMember(admin, "ravi@example.com", memberPass, "Ravi"), qt.Equals, "INF002")
}

func TestSearchMembers(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	ta.registerMember(admin, memberEmail, memberPass, "Asha")
	ta.requestAndParse(http.MethodPost, admin, usersEndpoint, &apicommon.RegisterRequest{
		Email:    "ravi@example.com",
		Password: memberPass,
		Mobile:   "+91 98765 43210",
	}, http.StatusOK, nil)

	search := func(query string) []*records.UserProfile {
		c.Helper()
		var res apicommon.UserSearchResponse
		ta.requestAndParse(http.MethodGet, admin, adminUsersEndpoint+"?"+query, nil, http.StatusOK, &res)
		return res.Users
	}

	found := search("registrationId=inf001")
	c.Assert(found, qt.HasLen, 1)
	c.Assert(found[0].Email, qt.Equals, memberEmail)

	found = search("email=RAVI@example.com")
	c.Assert(found, qt.HasLen, 1)
	c.Assert(found[0].RegistrationID, qt.Equals, "INF002")

	found = search("mobile=%2B919876543210")
	c.Assert(found, qt.HasLen, 1)
	c.Assert(found[0].RegistrationID, qt.Equals, "INF002")

	// every criteria must match
	c.Assert(search("registrationId=INF001&email=ravi@example.com"), qt.HasLen, 0)
	c.Assert(search("registrationId=INF404"), qt.HasLen, 0)

	// the admin profile is listed too
	c.Assert(search("all=true"), qt.HasLen, 3)
	c.Assert(search("all=true&limit=2"), qt.HasLen, 2)

	data, code := ta.request(http.MethodGet, admin, adminUsersEndpoint, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrNoSearchCriteria.Code)
	_, code = ta.request(http.MethodGet, admin, adminUsersEndpoint+"?all=true&limit=0", nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	member := ta.login(memberEmail, memberPass)
	_, code = ta.request(http.MethodGet, member, adminUsersEndpoint+"?all=true", nil)
	c.Assert(code, qt.Equals, http.StatusForbidden)
}
