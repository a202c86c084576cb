// Package store provides the generic document store the rest of the
// application is written against: schemaless JSON documents grouped into
// logical collections, addressed by store-assigned ids, queried by top-level
// field equality. The backing implementations guarantee per-document
// atomicity and nothing more; there is no referential integrity and no
// cross-document transaction.
package store

import "context"

// Logical collections.
const (
	Profiles       = "userProfiles"
	Surveys        = "surveys"
	Responses      = "responses"
	Credentials    = "credentials"
	SessionTokens  = "sessionTokens"
	PasswordResets = "passwordResets"
)

// Filters selects documents whose top-level fields equal the given values.
type Filters map[string]any

// Fields is a partial document used for in-place updates.
type Fields map[string]any

type Store interface {
	// Create inserts doc under a fresh store-assigned id and returns it.
	Create(ctx context.Context, collection string, doc any) (string, error)

	// Put inserts or replaces the document under a caller-chosen id
	// (profiles are keyed by email).
	Put(ctx context.Context, collection, id string, doc any) error

	// Get unmarshals the document into out, or returns apperr.ErrNotFound.
	Get(ctx context.Context, collection, id string, out any) error

	// Query unmarshals every matching document into out, which must be a
	// pointer to a slice. An empty filter set matches the whole collection.
	// Results come back in insertion order.
	Query(ctx context.Context, collection string, filters Filters, out any) error

	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error
}
