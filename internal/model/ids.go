package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Entity identifiers are content-addressed: a sha256 over the canonical field
// tuple, truncated to 12 hex characters under a type prefix. The same inputs
// always produce the same ID across process runs, which keeps graph upserts
// idempotent between re-runs.

// ContentID derives a deterministic identifier from the given parts.
func ContentID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + "_" + hex.EncodeToString(sum[:])[:12]
}

// LocationID returns the graph identifier for a location code.
func LocationID(location string) string {
	return "LOCATION_" + location
}

// DistrictID returns the graph identifier for a district within a region.
func DistrictID(region, district string) string {
	return "DISTRICT_" + sanitize(region) + "_" + sanitize(district)
}

// RegionID returns the graph identifier for a region.
func RegionID(region string) string {
	return "REGION_" + sanitize(region)
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}
