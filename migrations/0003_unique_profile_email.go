package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(3, "unique_profile_email", upUniqueProfileEmail, downUniqueProfileEmail)
}

const uniqueProfileEmailIndex = "profile_email_unique"

// upUniqueProfileEmail makes the email of member profiles unique. Documents
// of other collections may share an email field.
func upUniqueProfileEmail(ctx context.Context, database *mongo.Database) error {
	return replaceIndex(ctx, database.Collection(DocumentsCollection),
		[]string{profileEmailIndex},
		[]mongo.IndexModel{{
			Keys: bson.D{{Key: "data.email", Value: 1}},
			Options: options.Index().
				SetName(uniqueProfileEmailIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"parent":     "users",
					"data.email": bson.M{"$type": "string"},
				}),
		}},
	)
}

func downUniqueProfileEmail(ctx context.Context, database *mongo.Database) error {
	return replaceIndex(ctx, database.Collection(DocumentsCollection),
		[]string{uniqueProfileEmailIndex},
		[]mongo.IndexModel{{
			Keys: bson.D{
				{Key: "parent", Value: 1},
				{Key: "data.email", Value: 1},
			},
			Options: options.Index().SetName(profileEmailIndex),
		}},
	)
}
