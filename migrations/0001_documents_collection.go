package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	AddMigration(1, "documents_collection", upDocumentsCollection, downDocumentsCollection)
}

// documentsValidator describes the stored form of a document: its full path
// as id, the path of its collection and the JSON content.
var documentsValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "parent", "data"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":    "string",
				"description": "must be the document path and is required",
			},
			"parent": bson.M{
				"bsonType":    "string",
				"description": "must be the collection path and is required",
			},
			"data": bson.M{
				"bsonType":    "object",
				"description": "must be an object and is required",
			},
			"updatedAt": bson.M{
				"bsonType": "date",
			},
		},
	},
}

func upDocumentsCollection(ctx context.Context, database *mongo.Database) error {
	if err := createCollection(ctx, database, DocumentsCollection, documentsValidator); err != nil {
		return err
	}
	return createCollection(ctx, database, MigrationsCollection, nil)
}

func downDocumentsCollection(ctx context.Context, database *mongo.Database) error {
	if err := database.Collection(DocumentsCollection).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop %s: %w", DocumentsCollection, err)
	}
	return nil
}
