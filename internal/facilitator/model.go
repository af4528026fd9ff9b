// Package facilitator implements the service-discovery and route-policy
// mirror: the combined in-memory map of service configs and their route
// policies, its Last-Known-Good persistence, and the components that keep
// it fresh and consistent under concurrent access.
package facilitator

import (
	"fmt"
	"regexp"
	"time"
)

// PolicyType discriminates the two route policy variants. The source
// system dispatches on DTO subtype at runtime; here the variant is a
// closed tag carried by each policy struct instead.
type PolicyType string

const (
	PolicyTypeEdge PolicyType = "Edge"
	PolicyTypeS2S  PolicyType = "S2S"
)

// SnapshotSource records where a Snapshot's data came from.
type SnapshotSource string

const (
	SourceDB   SnapshotSource = "db"
	SourceLKG  SnapshotSource = "lkg"
	SourcePush SnapshotSource = "push"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9-]+$`)
	prefixPattern = regexp.MustCompile(`^/[A-Za-z0-9/-]*$`)
	urlPattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^\s]+$`)
)

// allowedMethods enumerates the HTTP verbs a route policy may carry.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// ServiceConfig identifies one version of one service: its network
// location and whether it is currently visible to the fleet.
type ServiceConfig struct {
	ID                string `json:"id"`
	Slug              string `json:"slug"`
	Version           int    `json:"version"`
	Enabled           bool   `json:"enabled"`
	InternalOnly      bool   `json:"internalOnly"`
	BaseURL           string `json:"baseUrl"`
	OutboundAPIPrefix string `json:"outboundApiPrefix"`
	ExposeHealth      bool   `json:"exposeHealth"`
	UpdatedAt         string `json:"updatedAt"`
	UpdatedBy         string `json:"updatedBy"`
	Notes             string `json:"notes,omitempty"`
}

// EdgePolicy is a route policy enforced at the fleet edge.
type EdgePolicy struct {
	ID             string `json:"id"`
	SvcConfigID    string `json:"svcconfigId"`
	Type           PolicyType `json:"type"`
	Slug           string `json:"slug"`
	Method         string `json:"method"`
	Path           string `json:"path"`
	Enabled        bool   `json:"enabled"`
	UpdatedAt      string `json:"updatedAt"`
	MinAccessLevel *int   `json:"minAccessLevel,omitempty"`
	BearerRequired bool   `json:"bearerRequired"`
}

// S2SPolicy is a route policy enforced between services.
type S2SPolicy struct {
	ID             string     `json:"id"`
	SvcConfigID    string     `json:"svcconfigId"`
	Type           PolicyType `json:"type"`
	Slug           string     `json:"slug"`
	Method         string     `json:"method"`
	Path           string     `json:"path"`
	Enabled        bool       `json:"enabled"`
	UpdatedAt      string     `json:"updatedAt"`
	MinAccessLevel *int       `json:"minAccessLevel,omitempty"`
	AllowedCallers []string   `json:"allowedCallers,omitempty"`
	Scopes         []string   `json:"scopes,omitempty"`
}

// Policies groups a parent's children by variant.
type Policies struct {
	Edge []EdgePolicy `json:"edge"`
	S2S  []S2SPolicy  `json:"s2s"`
}

// MirrorEntry is the combined record served by resolve/mirror.
type MirrorEntry struct {
	ServiceConfig ServiceConfig `json:"serviceConfig"`
	Policies      Policies      `json:"policies"`
}

// MirrorMap is the canonical-key-to-entry directory. Keys are always
// svcKey(entry.ServiceConfig.Slug, entry.ServiceConfig.Version).
type MirrorMap map[string]MirrorEntry

// Snapshot pairs a MirrorMap with its provenance.
type Snapshot struct {
	Map       MirrorMap      `json:"map"`
	Source    SnapshotSource `json:"source"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// ExternalSource reports the snapshot's provenance as downstream
// consumers should see it: a push is authoritative and reported as "db"
// rather than "push", which is an internal distinction only.
func (s Snapshot) ExternalSource() SnapshotSource {
	if s.Source == SourcePush {
		return SourceDB
	}
	return s.Source
}

// EmptySnapshot returns a well-formed, empty snapshot tagged as coming
// from the LKG path — the last-resort value when neither the database
// nor any LKG copy yields data.
func EmptySnapshot() Snapshot {
	return Snapshot{Map: MirrorMap{}, Source: SourceLKG, FetchedAt: time.Now().UTC()}
}

// SvcKey builds the canonical "<slug>@<version>" key. Callers that already
// hold a validated slug/version may use this directly; parseMirror
// revalidates regardless since keys may originate from untrusted input.
func SvcKey(slug string, version int) string {
	return fmt.Sprintf("%s@%d", slug, version)
}

func isValidSlug(slug string) bool {
	return slug != "" && slugPattern.MatchString(slug)
}

func isValidPrefix(prefix string) bool {
	if prefix == "" || prefix == "/" {
		return prefix == "/" || prefixPattern.MatchString(prefix)
	}
	if len(prefix) > 1 && prefix[len(prefix)-1] == '/' {
		return false
	}
	return prefixPattern.MatchString(prefix)
}

func isValidBaseURL(raw string) bool {
	return urlPattern.MatchString(raw)
}
