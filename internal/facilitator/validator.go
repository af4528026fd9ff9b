package facilitator

import (
	"fmt"
	"time"
)

// Validator normalizes and validates raw, untrusted JSON structures into
// the facilitator's typed model. It is stateless and used identically by
// the DB Loader (validating database rows shaped into plain maps) and the
// HTTP push handler (validating a POST body). It never logs; every
// failure is returned as an *Error with a precise Reason.
type Validator struct{}

// NewValidator constructs a stateless Snapshot Validator.
func NewValidator() *Validator { return &Validator{} }

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// asNumber accepts the float64 shape map[string]any gets from
// encoding/json, plus int for values constructed in-process (e.g. from
// pgx rows already decoded to Go ints).
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func normalizeUpdatedAt(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if _, err := time.Parse(time.RFC3339, t); err != nil {
			return "", false
		}
		return t, true
	case time.Time:
		return t.UTC().Format(time.RFC3339), true
	case float64:
		// epoch milliseconds, as a native timestamp would arrive from a
		// loosely-typed datastore driver.
		return time.UnixMilli(int64(t)).UTC().Format(time.RFC3339), true
	}
	return "", false
}

// ParseParent validates and normalizes one ServiceConfig record.
func (v *Validator) ParseParent(raw map[string]any) (ServiceConfig, *Error) {
	var sc ServiceConfig

	idVal, ok := raw["id"]
	if !ok {
		return sc, newValidationError(ReasonBadID, "id", "id is required")
	}
	switch t := idVal.(type) {
	case string:
		sc.ID = t
	case float64:
		sc.ID = fmt.Sprintf("%d", int64(t))
	default:
		return sc, newValidationError(ReasonBadID, "id", "id must be a string or number")
	}
	if sc.ID == "" {
		return sc, newValidationError(ReasonBadID, "id", "id must not be empty")
	}

	slug, ok := asString(raw["slug"])
	if !ok || !isValidSlug(slug) {
		return sc, newValidationError(ReasonBadID, "slug", "slug must match [a-z0-9-]+")
	}
	sc.Slug = slug

	versionNum, ok := asNumber(raw["version"])
	if !ok || versionNum < 1 || versionNum != float64(int(versionNum)) {
		return sc, newValidationError(ReasonBadID, "version", "version must be a positive integer")
	}
	sc.Version = int(versionNum)

	enabled, ok := asBool(raw["enabled"])
	if !ok {
		return sc, newValidationError(ReasonBadBoolean, "enabled", "enabled must be a strict boolean")
	}
	sc.Enabled = enabled

	internalOnly, ok := asBool(raw["internalOnly"])
	if !ok {
		return sc, newValidationError(ReasonBadBoolean, "internalOnly", "internalOnly must be a strict boolean")
	}
	sc.InternalOnly = internalOnly

	if !enabled || internalOnly {
		return sc, newValidationError(ReasonServiceDisabled, "enabled", "only enabled, non-internal parents are accepted into the mirror")
	}

	baseURL, ok := asString(raw["baseUrl"])
	if !ok || !isValidBaseURL(baseURL) {
		return sc, newValidationError(ReasonBadURL, "baseUrl", "baseUrl must be an absolute URL")
	}
	sc.BaseURL = baseURL

	prefix, ok := asString(raw["outboundApiPrefix"])
	if !ok || !isValidPrefix(prefix) {
		return sc, newValidationError(ReasonBadPrefix, "outboundApiPrefix", "outboundApiPrefix must start with / and have no trailing /")
	}
	sc.OutboundAPIPrefix = prefix

	exposeHealth, ok := asBool(raw["exposeHealth"])
	if !ok {
		return sc, newValidationError(ReasonBadBoolean, "exposeHealth", "exposeHealth must be a strict boolean")
	}
	sc.ExposeHealth = exposeHealth

	updatedAt, ok := normalizeUpdatedAt(raw["updatedAt"])
	if !ok {
		return sc, newValidationError(ReasonBadID, "updatedAt", "updatedAt must be a valid ISO-8601 instant")
	}
	sc.UpdatedAt = updatedAt

	updatedBy, _ := asString(raw["updatedBy"])
	sc.UpdatedBy = updatedBy

	if notes, ok := asString(raw["notes"]); ok {
		sc.Notes = notes
	}

	return sc, nil
}

func (v *Validator) parseCommonPolicyFields(raw map[string]any, wantType PolicyType) (id, svcConfigID, slug, method, path, updatedAt string, enabled bool, minAccessLevel *int, ferr *Error) {
	typeVal, ok := asString(raw["type"])
	if !ok || PolicyType(typeVal) != wantType {
		ferr = newValidationError(ReasonChildWrongType, "type", fmt.Sprintf("policy type must be %q", wantType))
		return
	}

	idVal, ok := asString(raw["id"])
	if !ok || idVal == "" {
		ferr = newValidationError(ReasonBadID, "id", "policy id is required")
		return
	}
	id = idVal

	svcVal, ok := asString(raw["svcconfigId"])
	if !ok || svcVal == "" {
		ferr = newValidationError(ReasonBadID, "svcconfigId", "svcconfigId is required")
		return
	}
	svcConfigID = svcVal

	slugVal, ok := asString(raw["slug"])
	if !ok {
		ferr = newValidationError(ReasonBadID, "slug", "policy slug is required")
		return
	}
	slug = slugVal

	methodVal, ok := asString(raw["method"])
	if !ok || !allowedMethods[methodVal] {
		ferr = newValidationError(ReasonBadID, "method", "method must be a recognized HTTP verb")
		return
	}
	method = methodVal

	pathVal, ok := asString(raw["path"])
	if !ok || !isValidPrefix(pathVal) {
		ferr = newValidationError(ReasonBadPrefix, "path", "path must start with /")
		return
	}
	path = pathVal

	enabledVal, ok := asBool(raw["enabled"])
	if !ok {
		ferr = newValidationError(ReasonBadBoolean, "enabled", "enabled must be a strict boolean")
		return
	}
	enabled = enabledVal

	ua, ok := normalizeUpdatedAt(raw["updatedAt"])
	if !ok {
		ferr = newValidationError(ReasonBadID, "updatedAt", "updatedAt must be a valid ISO-8601 instant")
		return
	}
	updatedAt = ua

	if lvl, present := raw["minAccessLevel"]; present && lvl != nil {
		n, ok := asNumber(lvl)
		if !ok {
			ferr = newValidationError(ReasonBadID, "minAccessLevel", "minAccessLevel must be an integer")
			return
		}
		i := int(n)
		minAccessLevel = &i
	}

	return
}

// ParseEdgePolicy validates and normalizes one Edge route policy.
func (v *Validator) ParseEdgePolicy(raw map[string]any) (EdgePolicy, *Error) {
	var p EdgePolicy
	id, svcID, slug, method, path, updatedAt, enabled, minLvl, ferr := v.parseCommonPolicyFields(raw, PolicyTypeEdge)
	if ferr != nil {
		return p, ferr
	}

	bearerRequired, ok := asBool(raw["bearerRequired"])
	if !ok {
		return p, newValidationError(ReasonBadBoolean, "bearerRequired", "bearerRequired must be a strict boolean")
	}

	p = EdgePolicy{
		ID: id, SvcConfigID: svcID, Type: PolicyTypeEdge, Slug: slug,
		Method: method, Path: path, Enabled: enabled, UpdatedAt: updatedAt,
		MinAccessLevel: minLvl, BearerRequired: bearerRequired,
	}
	return p, nil
}

// ParseS2SPolicy validates and normalizes one S2S route policy.
func (v *Validator) ParseS2SPolicy(raw map[string]any) (S2SPolicy, *Error) {
	var p S2SPolicy
	id, svcID, slug, method, path, updatedAt, enabled, minLvl, ferr := v.parseCommonPolicyFields(raw, PolicyTypeS2S)
	if ferr != nil {
		return p, ferr
	}

	var allowedCallers, scopes []string
	if raw["allowedCallers"] != nil {
		list, ok := raw["allowedCallers"].([]any)
		if !ok {
			return p, newValidationError(ReasonChildWrongType, "allowedCallers", "allowedCallers must be an array of strings")
		}
		for _, item := range list {
			s, ok := asString(item)
			if !ok {
				return p, newValidationError(ReasonChildWrongType, "allowedCallers", "allowedCallers entries must be strings")
			}
			allowedCallers = append(allowedCallers, s)
		}
	}
	if raw["scopes"] != nil {
		list, ok := raw["scopes"].([]any)
		if !ok {
			return p, newValidationError(ReasonChildWrongType, "scopes", "scopes must be an array of strings")
		}
		for _, item := range list {
			s, ok := asString(item)
			if !ok {
				return p, newValidationError(ReasonChildWrongType, "scopes", "scopes entries must be strings")
			}
			scopes = append(scopes, s)
		}
	}

	p = S2SPolicy{
		ID: id, SvcConfigID: svcID, Type: PolicyTypeS2S, Slug: slug,
		Method: method, Path: path, Enabled: enabled, UpdatedAt: updatedAt,
		MinAccessLevel: minLvl, AllowedCallers: allowedCallers, Scopes: scopes,
	}
	return p, nil
}

// ParseMirror validates and normalizes a whole keyed mirror document,
// such as the body of a push or the contents of an LKG file.
func (v *Validator) ParseMirror(raw any) (MirrorMap, *Error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, newValidationError(ReasonChildWrongType, "mirror", "mirror must be a keyed object, not an array or null")
	}

	out := make(MirrorMap, len(obj))
	for key, entryRaw := range obj {
		entryObj, ok := entryRaw.(map[string]any)
		if !ok {
			return nil, newValidationError(ReasonChildWrongType, key, "mirror entry must be an object")
		}

		scRaw, ok := entryObj["serviceConfig"].(map[string]any)
		if !ok {
			return nil, newValidationError(ReasonChildWrongType, key, "mirror entry missing serviceConfig")
		}
		sc, ferr := v.ParseParent(scRaw)
		if ferr != nil {
			return nil, ferr
		}

		wantKey := SvcKey(sc.Slug, sc.Version)
		if wantKey != key {
			return nil, newValidationError(ReasonKeyMismatch, key, fmt.Sprintf("key %q does not match serviceConfig %q", key, wantKey))
		}

		policiesRaw, _ := entryObj["policies"].(map[string]any)

		var edges []EdgePolicy
		if edgeList, ok := policiesRaw["edge"].([]any); ok {
			for _, raw := range edgeList {
				m, ok := raw.(map[string]any)
				if !ok {
					return nil, newValidationError(ReasonChildWrongType, key, "edge policy must be an object")
				}
				ep, ferr := v.ParseEdgePolicy(m)
				if ferr != nil {
					return nil, ferr
				}
				if ep.SvcConfigID != sc.ID {
					return nil, newValidationError(ReasonChildWrongParent, key, "edge policy svcconfigId does not match parent id")
				}
				edges = append(edges, ep)
			}
		}

		var s2ss []S2SPolicy
		if s2sList, ok := policiesRaw["s2s"].([]any); ok {
			for _, raw := range s2sList {
				m, ok := raw.(map[string]any)
				if !ok {
					return nil, newValidationError(ReasonChildWrongType, key, "s2s policy must be an object")
				}
				sp, ferr := v.ParseS2SPolicy(m)
				if ferr != nil {
					return nil, ferr
				}
				if sp.SvcConfigID != sc.ID {
					return nil, newValidationError(ReasonChildWrongParent, key, "s2s policy svcconfigId does not match parent id")
				}
				s2ss = append(s2ss, sp)
			}
		}

		out[key] = MirrorEntry{
			ServiceConfig: sc,
			Policies:      Policies{Edge: edges, S2S: s2ss},
		}
	}

	return out, nil
}
