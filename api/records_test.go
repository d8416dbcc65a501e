package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/records"
)

// insuranceResponse is a RecordResponse holding an accidental insurance.
type insuranceResponse struct {
	Kind   records.Kind                `json:"kind"`
	Exists bool                        `json:"exists"`
	Path   string                      `json:"path"`
	Status string                      `json:"status"`
	Record records.AccidentalInsurance `json:"record"`
}

func TestInsuranceStatements(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	regID := ta.registerMember(admin, memberEmail, memberPass, "Asha")
	c.Assert(regID, qt.Equals, "INF001")

	ref := docstore.MustDoc("users/INF001/accidental-insurance/details")
	c.Assert(ta.store.Set(context.Background(), ref, docstore.Document{
		"policyNumber": "POL1",
		"statements":   []any{map[string]any{"id": 1, "status": "Active"}},
	}), qt.IsNil)

	// add a statement
	var added struct {
		ID     records.ItemID              `json:"id"`
		Record records.AccidentalInsurance `json:"record"`
	}
	ta.requestAndParse(http.MethodPost, admin, recordPath(regID, records.KindAccidentalInsurance, "statements"),
		map[string]any{"date": "2024-07-01", "amount": 1500, "status": "Pending"}, http.StatusOK, &added)
	c.Assert(added.ID, qt.Not(qt.Equals), records.ItemID(""))
	c.Assert(added.Record.Statements, qt.HasLen, 2)

	// remove the legacy statement
	var res insuranceResponse
	ta.requestAndParse(http.MethodDelete, admin, recordPath(regID, records.KindAccidentalInsurance, "statements", "1"),
		nil, http.StatusOK, &res)
	c.Assert(res.Status, qt.Equals, "saved")
	c.Assert(res.Path, qt.Equals, ref.Path())
	c.Assert(res.Record.Statements, qt.HasLen, 1)
	c.Assert(res.Record.Statements[0].ID, qt.Equals, added.ID)

	// the stored document holds exactly the new statement
	snap, err := ta.store.Get(context.Background(), ref)
	c.Assert(err, qt.IsNil)
	stored := &records.AccidentalInsurance{}
	c.Assert(snap.DataTo(stored), qt.IsNil)
	c.Assert(stored.PolicyNumber, qt.Equals, "POL1")
	c.Assert(stored.Statements, qt.HasLen, 1)
	c.Assert(stored.Statements[0].ID, qt.Equals, added.ID)
	c.Assert(stored.Statements[0].Amount, qt.Equals, 1500.0)

	// the member sees the same record
	member := ta.login(memberEmail, memberPass)
	res = insuranceResponse{}
	ta.requestAndParse(http.MethodGet, member, recordPath(regID, records.KindAccidentalInsurance), nil, http.StatusOK, &res)
	c.Assert(res.Exists, qt.IsTrue)
	c.Assert(res.Record.Statements, qt.HasLen, 1)

	// unknown item and list, invalid date
	data, code := ta.request(http.MethodDelete, admin,
		recordPath(regID, records.KindAccidentalInsurance, "statements", "1"), nil)
	c.Assert(code, qt.Equals, http.StatusNotFound)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrItemNotFound.Code)
	_, code = ta.request(http.MethodPost, admin, recordPath(regID, records.KindAccidentalInsurance, "children"),
		map[string]any{"name": "Kiran"})
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	_, code = ta.request(http.MethodPost, admin, recordPath(regID, records.KindAccidentalInsurance, "statements"),
		map[string]any{"status": "Completed", "date": "yesterday"})
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// members cannot edit their plans
	_, code = ta.request(http.MethodPost, member, recordPath(regID, records.KindAccidentalInsurance, "statements"),
		map[string]any{"amount": 10})
	c.Assert(code, qt.Equals, http.StatusForbidden)
}

func TestReadMissingRecords(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	regID := ta.registerMember(admin, memberEmail, memberPass, "Asha")

	// a member without the record gets the empty one
	var res struct {
		Exists bool                `json:"exists"`
		Record records.Scholarship `json:"record"`
	}
	ta.requestAndParse(http.MethodGet, admin, recordPath(regID, records.KindScholarship), nil, http.StatusOK, &res)
	c.Assert(res.Exists, qt.IsFalse)
	c.Assert(res.Record.Children, qt.HasLen, 0)

	data, code := ta.request(http.MethodGet, admin, recordPath("INF404", records.KindScholarship), nil)
	c.Assert(code, qt.Equals, http.StatusNotFound)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrUserNotFound.Code)

	data, code = ta.request(http.MethodGet, admin, recordPath(regID, "pension"), nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrUnknownRecordKind.Code)
	_, code = ta.request(http.MethodGet, admin, recordPath(regID, records.KindSiteSettings), nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// editing a missing member fails the search
	data, code = ta.request(http.MethodPost, admin, recordPath("INF404", records.KindJoiningGift, "items"),
		map[string]any{"name": "Watch"})
	c.Assert(code, qt.Equals, http.StatusNotFound)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrUserNotFound.Code)
}

func TestScholarshipChildren(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	regID := ta.registerMember(admin, memberEmail, memberPass, "Asha")

	for _, name := range []string{"Kiran", "Meera"} {
		ta.requestAndParse(http.MethodPost, admin, recordPath(regID, records.KindScholarship, "children"),
			map[string]any{"name": name}, http.StatusOK, nil)
	}
	var res struct {
		Record struct {
			Children      []records.ScholarshipChild `json:"children"`
			ChildrenCount int                        `json:"childrenCount"`
		} `json:"record"`
	}
	ta.requestAndParse(http.MethodGet, admin, recordPath(regID, records.KindScholarship), nil, http.StatusOK, &res)
	c.Assert(res.Record.Children, qt.HasLen, 2)
	c.Assert(res.Record.ChildrenCount, qt.Equals, 2)

	// a stale stored count is never read back
	ref := docstore.MustDoc("users/INF001/scholarship/details")
	snap, err := ta.store.Get(context.Background(), ref)
	c.Assert(err, qt.IsNil)
	snap.Data["childrenCount"] = 9
	c.Assert(ta.store.Set(context.Background(), ref, snap.Data), qt.IsNil)
	ta.requestAndParse(http.MethodGet, admin, recordPath(regID, records.KindScholarship), nil, http.StatusOK, &res)
	c.Assert(res.Record.ChildrenCount, qt.Equals, 2)
}

func TestReplaceRecord(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	regID := ta.registerMember(admin, memberEmail, memberPass, "Asha")

	var res insuranceResponse
	ta.requestAndParse(http.MethodPut, admin, recordPath(regID, records.KindAccidentalInsurance), map[string]any{
		"policyNumber":   "POL9",
		"coverageAmount": 500000,
		"startDate":      "2024-01-01",
		"statements":     []any{map[string]any{"id": "a", "amount": 100, "status": "Paid"}},
	}, http.StatusOK, &res)
	c.Assert(res.Exists, qt.IsTrue)
	c.Assert(res.Record.PolicyNumber, qt.Equals, "POL9")
	c.Assert(res.Record.Statements, qt.HasLen, 1)

	// the whole document is replaced
	ta.requestAndParse(http.MethodPut, admin, recordPath(regID, records.KindAccidentalInsurance),
		map[string]any{"policyNumber": "POL10"}, http.StatusOK, &res)
	c.Assert(res.Record.PolicyNumber, qt.Equals, "POL10")
	c.Assert(res.Record.Statements, qt.HasLen, 0)
	c.Assert(res.Record.CoverageAmount, qt.Equals, 0.0)

	_, code := ta.request(http.MethodPut, admin, recordPath(regID, records.KindAccidentalInsurance),
		map[string]any{"startDate": "01/01/2024"})
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	_, code = ta.request(http.MethodPut, admin, recordPath(regID, records.KindAccidentalInsurance), []byte("{"))
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// a replaced profile keeps its identity
	var profile struct {
		Record records.UserProfile `json:"record"`
	}
	ta.requestAndParse(http.MethodPut, admin, recordPath(regID, records.KindProfile), map[string]any{
		"registrationId": "INF999",
		"uid":            "someone-else",
		"email":          memberEmail,
		"status":         "blocked",
	}, http.StatusOK, &profile)
	c.Assert(profile.Record.RegistrationID, qt.Equals, regID)
	c.Assert(profile.Record.UID, qt.Not(qt.Equals), "someone-else")
	c.Assert(profile.Record.Status, qt.Equals, "blocked")
}

func TestMemberAccess(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	asha := ta.registerMember(admin, memberEmail, memberPass, "Asha")
	ravi := ta.registerMember(admin, "ravi@example.com", memberPass, "Ravi")
	member := ta.login(memberEmail, memberPass)

	var own struct {
		Record records.UserProfile `json:"record"`
	}
	ta.requestAndParse(http.MethodGet, member, recordPath(asha, records.KindProfile), nil, http.StatusOK, &own)
	c.Assert(own.Record.Email, qt.Equals, memberEmail)

	// reading another member is denied and reported
	data, code := ta.request(http.MethodGet, member, recordPath(ravi, records.KindMaturityFund), nil)
	c.Assert(code, qt.Equals, http.StatusForbidden)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrForbidden.Code)

	var diag apicommon.DiagnosticsResponse
	ta.requestAndParse(http.MethodGet, admin, diagnosticsRecentEndpoint, nil, http.StatusOK, &diag)
	c.Assert(diag.Errors, qt.HasLen, 1)
	c.Assert(diag.Errors[0].Path, qt.Equals, "users/INF002/maturity-fund/details")
	c.Assert(diag.Errors[0].Operation, qt.Equals, docstore.OpGet)

	_, code = ta.request(http.MethodGet, member, diagnosticsRecentEndpoint, nil)
	c.Assert(code, qt.Equals, http.StatusForbidden)

	// members update the sections of their own profile
	ta.requestAndParse(http.MethodPut, member, "/users/"+asha+"/profile/address", map[string]any{
		"line1": "12 MG Road", "city": "Pune", "postalCode": "411001",
	}, http.StatusOK, &own)
	c.Assert(own.Record.Address.City, qt.Equals, "Pune")
	c.Assert(own.Record.PersonalInfo.FirstName, qt.Equals, "Asha")

	_, code = ta.request(http.MethodPut, member, "/users/"+ravi+"/profile/address", map[string]any{"city": "Goa"})
	c.Assert(code, qt.Equals, http.StatusForbidden)
	data, code = ta.request(http.MethodPut, member, "/users/"+asha+"/profile/role", map[string]any{})
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(c, data), qt.Equals, errors.ErrUnknownSection.Code)

	// whole records are only replaced by admins
	_, code = ta.request(http.MethodPut, member, recordPath(asha, records.KindProfile),
		map[string]any{"email": memberEmail, "role": "admin"})
	c.Assert(code, qt.Equals, http.StatusForbidden)
}

func TestSessionImpersonation(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	regID := ta.registerMember(admin, memberEmail, memberPass, "Asha")
	member := ta.login(memberEmail, memberPass)

	var res apicommon.SessionResponse
	ta.requestAndParse(http.MethodGet, member, sessionEndpoint, nil, http.StatusOK, &res)
	c.Assert(res.IsAdminView, qt.IsFalse)
	c.Assert(res.User.RegistrationID, qt.Equals, regID)
	c.Assert(res.Profile.Email, qt.Equals, memberEmail)

	res = apicommon.SessionResponse{}
	ta.requestAndParse(http.MethodGet, admin, sessionEndpoint+"?impersonate="+regID, nil, http.StatusOK, &res)
	c.Assert(res.IsAdminView, qt.IsTrue)
	c.Assert(res.User, qt.IsNil)
	c.Assert(res.Profile.RegistrationID, qt.Equals, regID)

	// unknown members leave the profile empty
	res = apicommon.SessionResponse{}
	ta.requestAndParse(http.MethodGet, admin, sessionEndpoint+"?impersonate=INF404", nil, http.StatusOK, &res)
	c.Assert(res.IsAdminView, qt.IsTrue)
	c.Assert(res.Profile, qt.IsNil)
	c.Assert(res.Error, qt.Not(qt.Equals), "")

	// members cannot view as someone else
	_, code := ta.request(http.MethodGet, member, sessionEndpoint+"?impersonate="+adminRegID, nil)
	c.Assert(code, qt.Equals, http.StatusForbidden)
}

// readEvent reads the next server-sent event of the given name.
func readEvent(c *qt.C, r *bufio.Reader, name string) []byte {
	c.Helper()
	current := ""
	for {
		line, err := r.ReadString('\n')
		c.Assert(err, qt.IsNil)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && current == name:
			return []byte(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestWatchRecord(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	regID := ta.registerMember(admin, memberEmail, memberPass, "Asha")
	member := ta.login(memberEmail, memberPass)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ta.server.URL+recordPath(regID, records.KindJoiningGift, "watch"), nil)
	c.Assert(err, qt.IsNil)
	req.Header.Set("Authorization", "Bearer "+member)
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	defer func() { _ = resp.Body.Close() }()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "text/event-stream")
	reader := bufio.NewReader(resp.Body)

	nextState := func() apicommon.WatchEvent {
		for {
			var ev apicommon.WatchEvent
			c.Assert(json.Unmarshal(readEvent(c, reader, "state"), &ev), qt.IsNil)
			if !ev.Loading {
				return ev
			}
		}
	}

	ev := nextState()
	c.Assert(ev.Error, qt.Equals, "")
	var gift records.JoiningGift
	c.Assert(json.Unmarshal(ev.Data, &gift), qt.IsNil)
	c.Assert(gift.Items, qt.HasLen, 0)

	ta.requestAndParse(http.MethodPost, admin, recordPath(regID, records.KindJoiningGift, "items"),
		map[string]any{"name": "Silver coin"}, http.StatusOK, nil)
	// repeated signals may resend the previous state
	for len(gift.Items) == 0 {
		ev = nextState()
		c.Assert(ev.Error, qt.Equals, "")
		c.Assert(json.Unmarshal(ev.Data, &gift), qt.IsNil)
	}
	c.Assert(gift.Items, qt.HasLen, 1)
	c.Assert(gift.Items[0].Name, qt.Equals, "Silver coin")
}

func TestWatchDenied(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	admin := ta.adminToken()
	ta.registerMember(admin, memberEmail, memberPass, "Asha")
	member := ta.login(memberEmail, memberPass)

	// the stream ends after the error event
	data, code := ta.request(http.MethodGet, member, recordPath(adminRegID, records.KindProfile, "watch"), nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(string(data), qt.Contains, "event: state")
	c.Assert(string(data), qt.Contains, "permission denied")
}
