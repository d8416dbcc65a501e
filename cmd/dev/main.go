// Package main runs the portal API for local development: an in-memory store
// (or a directory of JSON fixtures), local accounts, an administrator and a
// demo member, and mails captured in memory and written to the log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	root "github.com/infinityplans/portal"
	"github.com/infinityplans/portal/api"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/auth/local"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/backend"
	"github.com/infinityplans/portal/notifications/mailtemplates"
	"github.com/infinityplans/portal/notifications/testmail"
	"github.com/infinityplans/portal/objectstorage"
	"github.com/infinityplans/portal/records"
	"github.com/infinityplans/portal/settings"
	"github.com/infinityplans/portal/users"
	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	devSecret         = "dev-secret"
	devAdminEmail     = "admin@example.com"
	devAdminPassword  = "admin-password"
	devMemberEmail    = "asha@example.com"
	devMemberPassword = "password123"
)

func main() {
	port := flag.IntP("port", "p", 8080, "listen port")
	fixtures := flag.String("fixtures-dir", "", "serve a directory of JSON fixtures instead of an in-memory store")
	flag.Parse()
	log.Init("debug", "stdout", nil)
	ctx := context.Background()

	conf := &backend.Config{Kind: backend.Memory}
	if *fixtures != "" {
		conf = &backend.Config{Kind: backend.JSONFile, FixturesDir: *fixtures}
	}
	store, err := backend.Open(ctx, conf)
	if err != nil {
		log.Fatalf("could not open the document store: %v", err)
	}
	defer func() { _ = store.Close() }()

	provider := local.New(store, local.WithBcryptCost(bcrypt.MinCost))
	if err := seed(ctx, store, provider); err != nil {
		log.Fatalf("could not seed the development data: %v", err)
	}
	if err := mailtemplates.Load(root.Assets); err != nil {
		log.Fatalf("could not load the mail templates: %v", err)
	}
	siteSettings, err := settings.New(ctx, store)
	if err != nil {
		log.Fatalf("could not load the site settings: %v", err)
	}
	defer siteSettings.Close()
	osc, err := objectstorage.New(&objectstorage.Config{Bucket: objectstorage.NewMemoryBucket()})
	if err != nil {
		log.Fatalf("could not initialize the object storage: %v", err)
	}

	outbox := new(testmail.Outbox)
	a := api.New(&api.Config{
		Host:          "127.0.0.1",
		Port:          *port,
		Secret:        devSecret,
		Store:         store,
		Auth:          provider,
		Settings:      siteSettings,
		MailService:   outbox,
		SMSService:    outbox,
		ObjectStorage: osc,
		WebAppURL:     "http://localhost:3000",
		ServerURL:     fmt.Sprintf("http://localhost:%d", *port),
	})
	defer a.Close()
	a.Start()
	log.Infow("development server started", "port", *port,
		"admin", devAdminEmail, "member", devMemberEmail, "fixtures", *fixtures)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	for _, n := range outbox.Sent() {
		log.Infow("captured notification", "to", n.ToAddress+n.ToNumber, "subject", n.Subject)
	}
}

// seed creates the administrator and a demo member holding an active
// accidental insurance policy. Existing data is left untouched.
func seed(ctx context.Context, store docstore.Store, provider auth.Provider) error {
	dir := users.New(store)
	if _, err := dir.EnsureAdmin(ctx, provider, auth.Credentials{
		Email:    devAdminEmail,
		Password: devAdminPassword,
	}); err != nil {
		return err
	}
	if _, err := dir.ProfileByEmail(ctx, devMemberEmail); err == nil {
		return nil
	} else if !docstore.IsNotFound(err) {
		return err
	}
	member, err := dir.Create(ctx, &records.UserProfile{
		Email: devMemberEmail,
		PersonalInfo: records.PersonalInfo{
			FirstName: "Asha",
			LastName:  "Rao",
		},
	})
	if err != nil {
		return err
	}
	id, err := provider.Register(ctx, auth.Credentials{Email: devMemberEmail, Password: devMemberPassword},
		member.RegistrationID, false)
	if err != nil {
		return err
	}
	member.UID = id.UID
	if err := dir.SaveProfile(ctx, member); err != nil {
		return err
	}
	ref, err := records.DetailsRef(records.KindAccidentalInsurance, member.RegistrationID)
	if err != nil {
		return err
	}
	doc, err := docstore.Encode(&records.AccidentalInsurance{
		PolicyNumber:   "POL1",
		CoverageAmount: 500000,
		Premium:        1200,
		StartDate:      "2024-01-01",
		EndDate:        "2029-01-01",
		Status:         "Active",
		Statements: []records.Statement{
			{ID: "1", Date: "2024-01-01", Description: "First premium", Amount: 1200, Status: "Active"},
		},
	})
	if err != nil {
		return err
	}
	return store.Set(ctx, ref, doc)
}
