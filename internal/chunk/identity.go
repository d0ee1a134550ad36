package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// identityNamespace scopes chunk UUIDs away from every other UUIDv5
// user. Changing it invalidates all stored identities.
var identityNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("ragload.chunk"))

// Identity derives a chunk ID from its content and position. The same
// (scope, kind, ordinal, text) always produces the same UUID, which is
// what makes reloads overwrite instead of accumulate. Scope is the
// source ID for parents and the parent ID for children.
func Identity(scope string, kind Kind, ordinal int, text string) string {
	digest := sha256.Sum256([]byte(text))
	name := fmt.Sprintf("%s|%s|%d|%s", scope, kind, ordinal, hex.EncodeToString(digest[:]))
	return uuid.NewSHA1(identityNamespace, []byte(name)).String()
}
