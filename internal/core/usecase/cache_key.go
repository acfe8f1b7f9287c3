package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// CacheKey derives the response cache key from the normalized query text,
// the category hint and the external search flag.
func CacheKey(text, categoryHint string, preferExternalSearch bool) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	hint := strings.ToUpper(strings.TrimSpace(categoryHint))

	sum := sha256.Sum256([]byte(normalized + "\x00" + hint + "\x00" + strconv.FormatBool(preferExternalSearch)))
	return hex.EncodeToString(sum[:])
}
