package migrations

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// createCollection creates the collection with the given validator, or
// updates the validator when the collection already exists.
func createCollection(ctx context.Context, database *mongo.Database, name string, validator bson.M) error {
	current, err := database.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}
	if slices.Contains(current, name) {
		if validator == nil {
			return nil
		}
		if err := database.RunCommand(ctx, bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}).Err(); err != nil {
			return fmt.Errorf("failed to update validator of %s: %w", name, err)
		}
		return nil
	}
	opts := options.CreateCollection()
	if validator != nil {
		opts = opts.SetValidator(validator).SetValidationLevel("strict").SetValidationAction("error")
	}
	if err := database.CreateCollection(ctx, name, opts); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// replaceIndex drops the old indexes, ignoring the missing ones, and
// creates the new ones.
func replaceIndex(
	ctx context.Context,
	collection *mongo.Collection,
	oldIndexes []string,
	newIndexes []mongo.IndexModel,
) error {
	for _, name := range oldIndexes {
		if _, err := collection.Indexes().DropOne(ctx, name); err != nil {
			if strings.Contains(err.Error(), "IndexNotFound") {
				continue
			}
			return fmt.Errorf("failed to drop index %s for collection %s: %w",
				name, collection.Name(), err)
		}
	}
	for _, index := range newIndexes {
		if _, err := collection.Indexes().CreateOne(ctx, index); err != nil {
			return fmt.Errorf("failed to create index %v on %s: %w",
				index.Keys, collection.Name(), err)
		}
	}
	return nil
}
