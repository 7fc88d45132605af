package types

// Status is a type for the lifecycle status of a persisted resource.
// This is used to soft-delete rows and exclude them from queries.
// Any changes to this type should be reflected in the database schema by running migrations
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
