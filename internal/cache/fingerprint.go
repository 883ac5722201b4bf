package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// A fingerprint is the cache key for a request: a stable digest of the
// semantically meaningful fields only. Two requests that would produce the
// same model must collide, so map fields are folded in sorted key order and
// nothing timing- or job-related is mixed in.

// GenerateFingerprint fingerprints a model generation request.
func GenerateFingerprint(prompt string, seed *int64, inventory map[string]int) string {
	var b strings.Builder
	b.WriteString("prompt:")
	b.WriteString(prompt)
	b.WriteString("|seed:")
	if seed != nil {
		b.WriteString(strconv.FormatInt(*seed, 10))
	} else {
		b.WriteString("null")
	}
	b.WriteString("|inventory:")
	if len(inventory) > 0 {
		keys := make([]string, 0, len(inventory))
		for k := range inventory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%d;", k, inventory[k])
		}
	} else {
		b.WriteString("null")
	}

	sum := sha256.Sum256([]byte(b.String()))
	return "gen:" + hex.EncodeToString(sum[:])
}

// DetectFingerprint fingerprints an inventory detection request by its image
// payload.
func DetectFingerprint(image string) string {
	sum := sha256.Sum256([]byte("image:" + image))
	return "det:" + hex.EncodeToString(sum[:])
}
