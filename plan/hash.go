package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash fingerprints the plan's content (the ordered event refs). Stored on
// the job so an applied job can be traced back to what was planned.
func Hash(p Plan) string {
	refs := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		refs = append(refs, it.EventRef)
	}
	sum := sha256.Sum256([]byte(strings.Join(refs, "\n")))
	return hex.EncodeToString(sum[:])[:16]
}
