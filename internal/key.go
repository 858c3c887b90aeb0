package internal

import (
	"crypto/md5" //nolint:gosec // Fingerprint for cache filenames, not security.
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// CacheKey derives a deterministic, filename-safe fingerprint for a
// popular-books query. The same user set and threshold always yield the
// same key regardless of input ordering.
func CacheKey(selected []string, minCount int) string {
	users := slices.Clone(selected)
	slices.Sort(users)

	canonical := fmt.Sprintf("users=%s_min_count=%d", strings.Join(users, ","), minCount)
	sum := md5.Sum([]byte(canonical)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
