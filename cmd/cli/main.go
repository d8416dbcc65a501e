// Package main provides a CLI tool to export documents from the configured
// document store as JSON, or to import a JSON dump into it. Dumps map
// document paths to their content, the same format the fixtures endpoint
// accepts.
//
//	cli --store mongo --mongo-url ... --export users/INF001 --out inf001.json
//	cli --store jsonfile --fixtures-dir fixtures --import inf001.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/backend"
	"github.com/infinityplans/portal/records"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

func main() {
	// define flags
	flag.String("store", backend.Mongo, "document store backend (mongo, firestore, jsonfile)")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "portal", "The name of the MongoDB database")
	flag.String("firebase-project", "", "Firebase project id")
	flag.String("firebase-credentials", "", "Firebase service account file")
	flag.String("fixtures-dir", "fixtures", "directory of the jsonfile store")
	flag.StringP("export", "e", "", "export the documents under this path, \"/\" for everything")
	flag.StringP("member", "m", "", "export every record of this registration id")
	flag.StringP("import", "i", "", "import the documents of this JSON file")
	flag.StringP("out", "o", "", "output file of the export, stdout when empty")
	// parse flags
	flag.Parse()
	// initialize Viper for environment variable support
	viper.SetEnvPrefix("PORTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		log.Fatalf("could not bind flags: %v", err)
	}
	viper.AutomaticEnv()
	log.Init("info", "stderr", nil)

	prefix := viper.GetString("export")
	if member := viper.GetString("member"); member != "" {
		ref, err := records.ProfileRef(member)
		if err != nil {
			log.Fatalf("invalid registration id: %v", err)
		}
		prefix = ref.Path()
	}
	input := viper.GetString("import")
	if (prefix == "") == (input == "") {
		log.Fatal("exactly one of --export, --member or --import is required")
	}

	ctx := context.Background()
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
	defer func() { _ = store.Close() }()
	dumper, ok := store.(docstore.Dumper)
	if !ok {
		log.Fatalf("the %s store cannot export or import documents", viper.GetString("store"))
	}

	if input != "" {
		n, err := importFile(ctx, dumper, input)
		if err != nil {
			log.Fatalf("import failed: %v", err)
		}
		log.Infow("documents imported", "file", input, "documents", n)
		return
	}
	out := io.Writer(os.Stdout)
	if path := viper.GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			log.Fatalf("could not create %s: %v", path, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	n, err := export(ctx, dumper, strings.Trim(prefix, "/"), out)
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}
	log.Infow("documents exported", "prefix", prefix, "documents", n)
}

// export writes the documents under prefix as an indented JSON object.
func export(ctx context.Context, dumper docstore.Dumper, prefix string, w io.Writer) (int, error) {
	docs, err := dumper.Export(ctx, prefix)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// importFile reads a dump and writes every document of it.
func importFile(ctx context.Context, dumper docstore.Dumper, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	docs := map[string]docstore.Document{}
	if err := json.Unmarshal(raw, &docs); err != nil {
		return 0, fmt.Errorf("%s is not a document dump: %w", path, err)
	}
	if err := dumper.Import(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}
