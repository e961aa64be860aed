package services

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

// DeriveStorageKey maps a document location, display name and page to the object key of the
// rendered page: "<name lower-cased>-<hex sha512 of location upper-cased>/<page>.jpeg".
// The digest makes case variants of one location share a key while keeping different documents
// with the same display name apart.
func DeriveStorageKey(location, displayName string, page int) string {
	sum := sha512.Sum512([]byte(strings.ToUpper(location)))
	return fmt.Sprintf("%s-%s/%d.jpeg", strings.ToLower(displayName), hex.EncodeToString(sum[:]), page)
}
