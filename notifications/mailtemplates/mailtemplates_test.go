package mailtemplates

import (
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"
	root "github.com/infinityplans/portal"
)

func TestLoadEmbeddedTemplates(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(root.Assets), qt.IsNil)

	loaded := map[TemplateFile]bool{}
	for _, k := range Available() {
		loaded[k] = true
	}
	for _, mt := range []MailTemplate{PasswordResetNotification, WelcomeNotification, ContactNotification} {
		c.Assert(loaded[mt.File], qt.IsTrue, qt.Commentf("template %s should be available", mt.File))
	}
}

func TestExecTemplate(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(root.Assets), qt.IsNil)

	n, err := PasswordResetNotification.ExecTemplate(struct {
		Name, Code, Link string
	}{"Asha", "123456", "https://portal.example.com/account/password/reset?email=asha%40example.com"})
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "Your password reset code")
	c.Assert(n.Body, qt.Contains, "123456")
	c.Assert(n.Body, qt.Contains, "Hello Asha")
	c.Assert(n.PlainBody, qt.Contains, "Your password reset code is: 123456")

	n, err = WelcomeNotification.ExecTemplate(map[string]string{
		"Name": "Ravi", "RegistrationID": "INF002", "Link": "https://portal.example.com/login",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "Welcome, your registration id is INF002")
	c.Assert(n.Body, qt.Contains, "<strong>INF002</strong>")
}

func TestExecTemplateEscapesHTML(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(fstest.MapFS{
		"assets/mail/contact.html": {Data: []byte(`<p>{{.Message}}</p>`)},
		"assets/mail/notes.txt":    {Data: []byte(`ignored`)},
	}), qt.IsNil)
	c.Assert(Available(), qt.DeepEquals, []TemplateFile{"contact"})

	n, err := ContactNotification.ExecTemplate(map[string]string{
		"Name": "Asha", "Email": "asha@example.com", "Message": "<script>x</script>",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(n.Body, qt.Equals, "<p>&lt;script&gt;x&lt;/script&gt;</p>")
	c.Assert(n.PlainBody, qt.Contains, "<script>x</script>")

	_, err = WelcomeNotification.ExecTemplate(nil)
	c.Assert(err, qt.ErrorMatches, `template "welcome" not found`)
}

func TestExecPlain(t *testing.T) {
	c := qt.New(t)
	n, err := ExecPlain(PasswordResetSMS, map[string]string{"Code": "004211"})
	c.Assert(err, qt.IsNil)
	c.Assert(n.PlainBody, qt.Equals, "Your password reset code is 004211")
	c.Assert(n.Body, qt.Equals, "")
}
