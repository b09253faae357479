package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// PointID derives a deterministic UUID for the point holding a document
// section, keyed by the document path and the section ordinal. Re-ingesting
// the same document overwrites its points instead of duplicating them.
func PointID(path string, ordinal int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", path, ordinal))).String()
}
