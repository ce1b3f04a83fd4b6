// Package sqlxdb implements the repositories on PostgreSQL via sqlx.
// All uniqueness guarantees live in the schema's constraints; the code here
// only translates constraint violations into the domain's sentinel errors.
package sqlxdb

import "github.com/lib/pq"

// PostgreSQL error codes.
const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)
