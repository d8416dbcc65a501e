// Package apicommon provides common types, constants, and helper functions for the API.
package apicommon

import "time"

// MetadataKey is a type to define the key for the metadata stored in the
// context.
type MetadataKey string

// IdentityMetadataKey is the key used to store the authenticated identity in
// the context.
const IdentityMetadataKey MetadataKey = "identity"

// TokenIDMetadataKey is the key used to store the JWT id in the context.
const TokenIDMetadataKey MetadataKey = "tokenId"

const (
	// JWTExpiration is the lifetime of the tokens issued by the API.
	JWTExpiration = 24 * time.Hour
	// NotificationTimeout bounds the time spent sending a mail or SMS.
	NotificationTimeout = 10 * time.Second
)
