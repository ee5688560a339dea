package ledgersync

import (
	"fmt"
	"strings"
)

// External reference format: {SYSTEM}-{TYPE}-{upstreamId}, e.g. LD-CLIENT-123.
// Unique per (system, entity type, upstream id) and stable across syncs.

func BuildExternalRef(system, entityType, externalId string) string {
	return fmt.Sprintf("%s-%s-%s", system, entityType, externalId)
}

func RefPrefix(system, entityType string) string {
	return fmt.Sprintf("%s-%s-", system, entityType)
}

// ParseExternalRef splits a reference key back into its segments. The id
// segment may itself contain dashes, only the first two are structural.
func ParseExternalRef(ref string) (system, entityType, externalId string, err error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed external reference %q", ref)
	}
	return parts[0], parts[1], parts[2], nil
}
