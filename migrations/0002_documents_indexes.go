package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(2, "documents_indexes", upDocumentsIndexes, downDocumentsIndexes)
}

const (
	parentIndex        = "parent_id"
	profileEmailIndex  = "profile_email"
	profileMobileIndex = "profile_mobile"
)

func upDocumentsIndexes(ctx context.Context, database *mongo.Database) error {
	documents := database.Collection(DocumentsCollection)
	if _, err := documents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// every query runs on a single collection, in id order by default
		{
			Keys: bson.D{
				{Key: "parent", Value: 1}, // 1 for ascending order
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName(parentIndex),
		},
		// admin searches by email and mobile
		{
			Keys: bson.D{
				{Key: "parent", Value: 1},
				{Key: "data.email", Value: 1},
			},
			Options: options.Index().SetName(profileEmailIndex),
		},
		{
			Keys: bson.D{
				{Key: "parent", Value: 1},
				{Key: "data.mobile", Value: 1},
			},
			Options: options.Index().SetName(profileMobileIndex).SetSparse(true),
		},
	}); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", DocumentsCollection, err)
	}
	return nil
}

func downDocumentsIndexes(ctx context.Context, database *mongo.Database) error {
	documents := database.Collection(DocumentsCollection)
	for _, name := range []string{parentIndex, profileEmailIndex, profileMobileIndex} {
		if _, err := documents.Indexes().DropOne(ctx, name); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", name, err)
		}
	}
	return nil
}
