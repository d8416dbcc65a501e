package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	root "github.com/infinityplans/portal"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/auth/local"
	"github.com/infinityplans/portal/docstore/memory"
	"github.com/infinityplans/portal/emitter"
	"github.com/infinityplans/portal/notifications/mailtemplates"
	"github.com/infinityplans/portal/notifications/testmail"
	"github.com/infinityplans/portal/objectstorage"
	"github.com/infinityplans/portal/records"
	"github.com/infinityplans/portal/settings"
	"github.com/infinityplans/portal/users"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret  = "super-secret"
	testWebApp  = "https://portal.example.com"
	adminEmail  = "admin@example.com"
	adminPass   = "admin-password"
	adminRegID  = "ADM001"
	memberEmail = "asha@example.com"
	memberPass  = "password123"
)

// testAPI is an API served by httptest over an in-memory store.
type testAPI struct {
	c       *qt.C
	api     *API
	server  *httptest.Server
	store   *memory.Store
	outbox  *testmail.Outbox
	sms     *testmail.Outbox
	emitter *emitter.Emitter
}

// newTestAPI starts an API with a registered administrator, ADM001.
func newTestAPI(c *qt.C) *testAPI {
	c.Helper()
	c.Assert(mailtemplates.Load(root.Assets), qt.IsNil)
	ctx := context.Background()
	store := memory.New()
	provider := local.New(store, local.WithBcryptCost(bcrypt.MinCost))

	admin := &records.UserProfile{
		RegistrationID: adminRegID,
		Email:          adminEmail,
		Role:           records.RoleAdmin,
		Status:         "active",
	}
	id, err := provider.Register(ctx, auth.Credentials{Email: adminEmail, Password: adminPass}, adminRegID, true)
	c.Assert(err, qt.IsNil)
	admin.UID = id.UID
	c.Assert(users.New(store).SaveProfile(ctx, admin), qt.IsNil)

	siteSettings, err := settings.New(ctx, store)
	c.Assert(err, qt.IsNil)
	c.Cleanup(siteSettings.Close)

	osc, err := objectstorage.New(&objectstorage.Config{Bucket: objectstorage.NewMemoryBucket()})
	c.Assert(err, qt.IsNil)

	ta := &testAPI{
		c:       c,
		store:   store,
		outbox:  new(testmail.Outbox),
		sms:     new(testmail.Outbox),
		emitter: emitter.New(),
	}
	ta.api = New(&Config{
		Secret:        testSecret,
		Store:         store,
		Auth:          provider,
		Settings:      siteSettings,
		MailService:   ta.outbox,
		SMSService:    ta.sms,
		ObjectStorage: osc,
		Emitter:       ta.emitter,
		WebAppURL:     testWebApp,
	})
	c.Assert(ta.api, qt.IsNotNil)
	c.Cleanup(ta.api.Close)
	ta.server = httptest.NewServer(ta.api.Router())
	c.Cleanup(ta.server.Close)
	return ta
}

// request sends a JSON request and returns the response body and status.
// A nil body sends no content; a []byte body is sent as is.
func (ta *testAPI) request(method, token, path string, body any) ([]byte, int) {
	ta.c.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		reader = bytes.NewReader(mustMarshal(b))
	}
	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	ta.c.Assert(err, qt.IsNil)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ta.do(req, token)
}

func (ta *testAPI) do(req *http.Request, token string) ([]byte, int) {
	ta.c.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	ta.c.Assert(err, qt.IsNil)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	ta.c.Assert(err, qt.IsNil)
	return data, resp.StatusCode
}

// requestAndParse sends a request, checks the status and decodes the
// response into out when it is not nil.
func (ta *testAPI) requestAndParse(method, token, path string, body any, status int, out any) {
	ta.c.Helper()
	data, code := ta.request(method, token, path, body)
	ta.c.Assert(code, qt.Equals, status, qt.Commentf("%s %s: %s", method, path, data))
	if out != nil {
		ta.c.Assert(json.Unmarshal(data, out), qt.IsNil, qt.Commentf("%s", data))
	}
}

func (ta *testAPI) login(email, password string) string {
	ta.c.Helper()
	var res apicommon.LoginResponse
	ta.requestAndParse(http.MethodPost, "", authLoginEndpoint,
		auth.Credentials{Email: email, Password: password}, http.StatusOK, &res)
	ta.c.Assert(res.Token, qt.Not(qt.Equals), "")
	return res.Token
}

func (ta *testAPI) adminToken() string {
	return ta.login(adminEmail, adminPass)
}

// registerMember registers a member through the API and returns the
// registration id.
func (ta *testAPI) registerMember(adminToken, email, password, firstName string) string {
	ta.c.Helper()
	var res apicommon.RegisterResponse
	ta.requestAndParse(http.MethodPost, adminToken, usersEndpoint, &apicommon.RegisterRequest{
		Email:        email,
		Password:     password,
		PersonalInfo: records.PersonalInfo{FirstName: firstName, LastName: "Rao"},
	}, http.StatusOK, &res)
	return res.RegistrationID
}

// mustMarshal helper function marshalls the input interface into a byte slice.
// It panics if the marshalling fails.
func mustMarshal(i any) []byte {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return b
}

// recordPath returns the endpoint of a record of a member.
func recordPath(regID string, kind records.Kind, extra ...string) string {
	p := fmt.Sprintf("/users/%s/records/%s", regID, kind)
	for _, e := range extra {
		p += "/" + e
	}
	return p
}

// errorCode decodes the code of an API error response.
func errorCode(c *qt.C, data []byte) int {
	c.Helper()
	var e struct {
		Code int `json:"code"`
	}
	c.Assert(json.Unmarshal(data, &e), qt.IsNil, qt.Commentf("%s", data))
	return e.Code
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	data, code := ta.request(http.MethodGet, "", pingEndpoint, nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(string(data), qt.Equals, ".")
}

func TestNewRequiresDependencies(t *testing.T) {
	c := qt.New(t)
	c.Assert(New(nil), qt.IsNil)
	c.Assert(New(&Config{Store: memory.New()}), qt.IsNil)
}
