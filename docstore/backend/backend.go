// Package backend opens the document store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/firestore"
	"github.com/infinityplans/portal/docstore/jsonfile"
	"github.com/infinityplans/portal/docstore/memory"
	"github.com/infinityplans/portal/docstore/mongo"
)

// Supported backend names.
const (
	Mongo     = "mongo"
	Firestore = "firestore"
	JSONFile  = "jsonfile"
	Memory    = "memory"
)

// Config selects and configures a backend. Only the fields of the chosen
// backend are used.
type Config struct {
	Kind string

	MongoURL string
	MongoDB  string

	FirebaseProject     string
	FirebaseCredentials string

	FixturesDir string
}

// Open returns the configured store.
func Open(ctx context.Context, conf *Config) (docstore.Store, error) {
	switch conf.Kind {
	case Mongo:
		if conf.MongoURL == "" {
			return nil, fmt.Errorf("mongo url is required")
		}
		return mongo.New(conf.MongoURL, conf.MongoDB)
	case Firestore:
		return firestore.New(ctx, conf.FirebaseProject, conf.FirebaseCredentials)
	case JSONFile:
		if conf.FixturesDir == "" {
			return nil, fmt.Errorf("fixtures directory is required")
		}
		return jsonfile.New(conf.FixturesDir)
	case Memory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown document store %q", conf.Kind)
}
