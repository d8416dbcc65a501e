package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	root "github.com/infinityplans/portal"
	"github.com/infinityplans/portal/api"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/auth/firebase"
	"github.com/infinityplans/portal/auth/local"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/backend"
	"github.com/infinityplans/portal/notifications"
	"github.com/infinityplans/portal/notifications/mailtemplates"
	"github.com/infinityplans/portal/notifications/sendgrid"
	"github.com/infinityplans/portal/notifications/smtp"
	"github.com/infinityplans/portal/notifications/twilio"
	"github.com/infinityplans/portal/objectstorage"
	"github.com/infinityplans/portal/settings"
	"github.com/infinityplans/portal/users"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

func main() {
	// define flags
	flag.String("env-file", "", "optional .env file with the configuration")
	flag.String("log-level", "debug", "log level (debug, info, warn, error)")
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.StringP("secret", "s", "", "API secret")
	flag.String("server-url", "http://localhost:8080", "public URL of the API, used in download links")
	flag.String("webapp-url", "https://portal.infinityplans.in", "URL of the web application, used in mails")
	// document store
	flag.String("store", backend.Mongo, "document store backend (mongo, firestore, jsonfile, memory)")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "portal", "The name of the MongoDB database")
	flag.String("firebase-project", "", "Firebase project id")
	flag.String("firebase-credentials", "", "Firebase service account file, empty for default credentials")
	flag.String("fixtures-dir", "fixtures", "directory of the jsonfile store")
	// authentication
	flag.String("auth", "local", "authentication provider (local, firebase)")
	flag.String("admin-email", "", "email of the administrator created on startup")
	flag.String("admin-password", "", "password of the administrator created on startup")
	// notifications
	flag.String("emailFromAddress", "", "Email service from address")
	flag.String("emailFromName", "Infinity Plans", "Email service from name")
	flag.String("smtpServer", "", "SMTP server")
	flag.Int("smtpPort", 587, "SMTP port")
	flag.String("smtpUsername", "", "SMTP username")
	flag.String("smtpPassword", "", "SMTP password")
	flag.String("sendgridApiKey", "", "SendGrid API key, used instead of SMTP when set")
	flag.String("twilioAccountSid", "", "Twilio account SID")
	flag.String("twilioAuthToken", "", "Twilio auth token")
	flag.String("twilioFromNumber", "", "Twilio from number")
	// object storage
	flag.String("s3-endpoint", "", "S3 compatible endpoint, empty for AWS")
	flag.String("s3-region", "ap-south-1", "S3 region")
	flag.String("s3-bucket", "", "S3 bucket for uploaded documents, empty keeps them in memory")
	flag.String("s3-access-key", "", "S3 access key")
	flag.String("s3-secret-key", "", "S3 secret key")
	flag.Bool("s3-path-style", false, "use path style S3 URLs")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("PORTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	loadEnvFile(viper.GetString("env-file"))
	log.Init(viper.GetString("log-level"), "stdout", nil)

	ctx := context.Background()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	if secret == "" {
		log.Fatal("secret is required")
	}
	// initialize the document store
	store, err := backend.Open(ctx, &backend.Config{
		Kind:                viper.GetString("store"),
		MongoURL:            viper.GetString("mongo-url"),
		MongoDB:             viper.GetString("mongo-db"),
		FirebaseProject:     viper.GetString("firebase-project"),
		FirebaseCredentials: viper.GetString("firebase-credentials"),
		FixturesDir:         viper.GetString("fixtures-dir"),
	})
	if err != nil {
		log.Fatalf("could not open the document store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("error closing the document store", "error", err)
		}
	}()
	// initialize the authentication provider
	provider := authProvider(ctx, store)
	if email := viper.GetString("admin-email"); email != "" {
		if _, err := users.New(store).EnsureAdmin(ctx, provider, auth.Credentials{
			Email:    email,
			Password: viper.GetString("admin-password"),
		}); err != nil {
			log.Fatalf("could not create the administrator: %v", err)
		}
	}
	// load the mail templates
	if err := mailtemplates.Load(root.Assets); err != nil {
		log.Fatalf("could not load the mail templates: %v", err)
	}
	// follow the site settings
	siteSettings, err := settings.New(ctx, store)
	if err != nil {
		log.Fatalf("could not load the site settings: %v", err)
	}
	defer siteSettings.Close()
	// object storage for uploaded documents
	osc, err := objectStorage(ctx)
	if err != nil {
		log.Fatalf("could not initialize the object storage: %v", err)
	}
	// create the local API server
	a := api.New(&api.Config{
		Host:          host,
		Port:          port,
		Secret:        secret,
		Store:         store,
		Auth:          provider,
		Settings:      siteSettings,
		MailService:   mailService(),
		SMSService:    smsService(),
		ObjectStorage: osc,
		WebAppURL:     viper.GetString("webapp-url"),
		ServerURL:     viper.GetString("server-url"),
	})
	defer a.Close()
	a.Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port, "store", viper.GetString("store"))
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// loadEnvFile loads the given .env file, or ./.env when it exists.
func loadEnvFile(path string) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Fatalf("could not load %s: %v", path, err)
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("could not load .env: %v", err)
		}
	}
}

func authProvider(ctx context.Context, store docstore.Store) auth.Provider {
	switch kind := viper.GetString("auth"); kind {
	case "local":
		return local.New(store)
	case "firebase":
		p, err := firebase.New(ctx, viper.GetString("firebase-project"), viper.GetString("firebase-credentials"))
		if err != nil {
			log.Fatalf("could not initialize Firebase authentication: %v", err)
		}
		return p
	default:
		log.Fatalf("unknown authentication provider %q", kind)
	}
	return nil
}

// mailService returns SendGrid when an API key is set, SMTP when a server is
// set and nil otherwise.
func mailService() notifications.NotificationService {
	fromAddress := viper.GetString("emailFromAddress")
	fromName := viper.GetString("emailFromName")
	if key := viper.GetString("sendgridApiKey"); key != "" {
		svc := new(sendgrid.Email)
		if err := svc.New(&sendgrid.Config{FromName: fromName, FromAddress: fromAddress, APIKey: key}); err != nil {
			log.Fatalf("could not create the SendGrid service: %v", err)
		}
		log.Infow("mail service configured", "provider", "sendgrid")
		return svc
	}
	if server := viper.GetString("smtpServer"); server != "" {
		svc := new(smtp.Email)
		if err := svc.New(&smtp.Config{
			FromName:     fromName,
			FromAddress:  fromAddress,
			SMTPServer:   server,
			SMTPPort:     viper.GetInt("smtpPort"),
			SMTPUsername: viper.GetString("smtpUsername"),
			SMTPPassword: viper.GetString("smtpPassword"),
		}); err != nil {
			log.Fatalf("could not create the SMTP service: %v", err)
		}
		log.Infow("mail service configured", "provider", "smtp", "server", server)
		return svc
	}
	log.Warnw("no mail service configured, mails will not be sent")
	return nil
}

func smsService() notifications.NotificationService {
	sid := viper.GetString("twilioAccountSid")
	if sid == "" {
		return nil
	}
	svc := new(twilio.SMS)
	if err := svc.New(&twilio.Config{
		AccountSid: sid,
		AuthToken:  viper.GetString("twilioAuthToken"),
		FromNumber: viper.GetString("twilioFromNumber"),
	}); err != nil {
		log.Fatalf("could not create the SMS service: %v", err)
	}
	return svc
}

func objectStorage(ctx context.Context) (*objectstorage.Client, error) {
	var bucket objectstorage.Bucket = objectstorage.NewMemoryBucket()
	if name := viper.GetString("s3-bucket"); name != "" {
		s3, err := objectstorage.NewS3Bucket(ctx, &objectstorage.S3Config{
			Endpoint:     viper.GetString("s3-endpoint"),
			Region:       viper.GetString("s3-region"),
			Bucket:       name,
			AccessKey:    viper.GetString("s3-access-key"),
			SecretKey:    viper.GetString("s3-secret-key"),
			UsePathStyle: viper.GetBool("s3-path-style"),
		})
		if err != nil {
			return nil, err
		}
		bucket = s3
	} else {
		log.Warnw("no S3 bucket configured, uploaded documents are kept in memory")
	}
	return objectstorage.New(&objectstorage.Config{Bucket: bucket})
}
