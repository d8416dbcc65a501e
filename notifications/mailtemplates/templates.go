package mailtemplates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/infinityplans/portal/notifications"
)

// TemplatesDir is the directory of the HTML templates inside the assets
// filesystem.
const TemplatesDir = "assets/mail"

var (
	mu        sync.RWMutex
	available map[TemplateFile]*htmltemplate.Template
)

// TemplateFile represents an email template key. Every email template should
// have a key that identifies it, which is the filename without the extension.
type TemplateFile string

// MailTemplate struct represents an email template. It includes the file key
// and the notification placeholder to be sent. The file key is the filename
// of the template without the extension. The notification placeholder includes
// the plain body template to be used as a fallback for email clients that do
// not support HTML, and the mail subject.
type MailTemplate struct {
	File        TemplateFile
	Placeholder notifications.Notification
	WebAppURI   string
}

// Load parses every .html file under TemplatesDir of fsys, usually the
// embedded root.Assets.
func Load(fsys fs.FS) error {
	parsed := make(map[TemplateFile]*htmltemplate.Template)
	if err := fs.WalkDir(fsys, TemplatesDir, func(fPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		tmpl, err := htmltemplate.ParseFS(fsys, fPath)
		if err != nil {
			return fmt.Errorf("could not parse %s: %w", fPath, err)
		}
		parsed[TemplateFile(strings.TrimSuffix(path.Base(fPath), ".html"))] = tmpl
		return nil
	}); err != nil {
		return err
	}
	mu.Lock()
	available = parsed
	mu.Unlock()
	return nil
}

// Available returns the keys of the loaded templates.
func Available() []TemplateFile {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]TemplateFile, 0, len(available))
	for k := range available {
		keys = append(keys, k)
	}
	return keys
}

// ExecTemplate renders the HTML template and the plain body placeholder
// with data. The subject is a template too. Templates must be loaded first.
func (mt MailTemplate) ExecTemplate(data any) (*notifications.Notification, error) {
	mu.RLock()
	tmpl, ok := available[mt.File]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", mt.File)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}
	n := &notifications.Notification{Body: buf.String()}
	var err error
	if n.Subject, err = execText(mt.Placeholder.Subject, data); err != nil {
		return nil, err
	}
	if n.PlainBody, err = execText(mt.Placeholder.PlainBody, data); err != nil {
		return nil, err
	}
	return n, nil
}

func execText(text string, data any) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := texttemplate.New("plain").Parse(text)
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExecPlain renders the subject and plain body of a notification without an
// HTML template, as used for SMS.
func ExecPlain(placeholder notifications.Notification, data any) (*notifications.Notification, error) {
	n := &notifications.Notification{}
	var err error
	if n.Subject, err = execText(placeholder.Subject, data); err != nil {
		return nil, err
	}
	if n.PlainBody, err = execText(placeholder.PlainBody, data); err != nil {
		return nil, err
	}
	return n, nil
}
