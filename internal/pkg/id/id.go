package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, so todo
// lists ordered by ID come back oldest first, and they work unchanged as
// DynamoDB partition keys and Mongo _id values.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
