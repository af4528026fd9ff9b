package facilitator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParentRaw() map[string]any {
	return map[string]any{
		"id": "svc-1", "slug": "billing", "version": float64(2),
		"enabled": true, "internalOnly": false,
		"baseUrl": "https://billing.internal:8443",
		"outboundApiPrefix": "/v2/billing",
		"exposeHealth": true,
		"updatedAt": "2026-01-01T00:00:00Z",
		"updatedBy": "ops", "notes": "seed",
	}
}

func TestParseParentAccepts(t *testing.T) {
	v := NewValidator()
	sc, ferr := v.ParseParent(validParentRaw())
	require.Nil(t, ferr)
	assert.Equal(t, "svc-1", sc.ID)
	assert.Equal(t, "billing", sc.Slug)
	assert.Equal(t, 2, sc.Version)
	assert.True(t, sc.Enabled)
	assert.Equal(t, "/v2/billing", sc.OutboundAPIPrefix)
}

func TestParseParentNumericID(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["id"] = float64(42)
	sc, ferr := v.ParseParent(raw)
	require.Nil(t, ferr)
	assert.Equal(t, "42", sc.ID)
}

func TestParseParentRejectsBadSlug(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["slug"] = "Billing_API"
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadID, ferr.Reason)
	assert.Equal(t, "slug", ferr.Field)
}

func TestParseParentRejectsNonStrictBoolean(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["enabled"] = "true"
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadBoolean, ferr.Reason)
}

func TestParseParentRejectsBadURL(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["baseUrl"] = "billing.internal"
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadURL, ferr.Reason)
}

func TestParseParentRejectsTrailingSlashPrefix(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["outboundApiPrefix"] = "/v2/billing/"
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadPrefix, ferr.Reason)
}

func TestParseParentRejectsDisabled(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["enabled"] = false
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonServiceDisabled, ferr.Reason)
}

func TestParseParentRejectsInternalOnly(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["internalOnly"] = true
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonServiceDisabled, ferr.Reason)
}

func TestParseParentRejectsMissingID(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	delete(raw, "id")
	_, ferr := v.ParseParent(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadID, ferr.Reason)
}

func TestParseParentAcceptsEpochMillisUpdatedAt(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["updatedAt"] = float64(1735689600000)
	sc, ferr := v.ParseParent(raw)
	require.Nil(t, ferr)
	assert.NotEmpty(t, sc.UpdatedAt)
}

func validEdgeRaw(svcID string) map[string]any {
	return map[string]any{
		"type": "Edge", "id": "pol-1", "svcconfigId": svcID,
		"slug": "billing", "method": "GET", "path": "/v2/billing/invoices",
		"enabled": true, "updatedAt": "2026-01-01T00:00:00Z",
		"bearerRequired": true,
	}
}

func TestParseEdgePolicyAccepts(t *testing.T) {
	v := NewValidator()
	ep, ferr := v.ParseEdgePolicy(validEdgeRaw("svc-1"))
	require.Nil(t, ferr)
	assert.Equal(t, PolicyTypeEdge, ep.Type)
	assert.True(t, ep.BearerRequired)
}

func TestParseEdgePolicyRejectsWrongType(t *testing.T) {
	v := NewValidator()
	raw := validEdgeRaw("svc-1")
	raw["type"] = "S2S"
	_, ferr := v.ParseEdgePolicy(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonChildWrongType, ferr.Reason)
}

func TestParseEdgePolicyRejectsUnknownMethod(t *testing.T) {
	v := NewValidator()
	raw := validEdgeRaw("svc-1")
	raw["method"] = "TRACE"
	_, ferr := v.ParseEdgePolicy(raw)
	require.NotNil(t, ferr)
}

func validS2SRaw(svcID string) map[string]any {
	return map[string]any{
		"type": "S2S", "id": "pol-2", "svcconfigId": svcID,
		"slug": "billing", "method": "POST", "path": "/v2/billing/charges",
		"enabled": true, "updatedAt": "2026-01-01T00:00:00Z",
		"allowedCallers": []any{"payments", "ledger"},
		"scopes":         []any{"charges:write"},
		"minAccessLevel": float64(3),
	}
}

func TestParseS2SPolicyAccepts(t *testing.T) {
	v := NewValidator()
	sp, ferr := v.ParseS2SPolicy(validS2SRaw("svc-1"))
	require.Nil(t, ferr)
	assert.Equal(t, []string{"payments", "ledger"}, sp.AllowedCallers)
	assert.Equal(t, []string{"charges:write"}, sp.Scopes)
	require.NotNil(t, sp.MinAccessLevel)
	assert.Equal(t, 3, *sp.MinAccessLevel)
}

func TestParseS2SPolicyRejectsNonStringCallers(t *testing.T) {
	v := NewValidator()
	raw := validS2SRaw("svc-1")
	raw["allowedCallers"] = []any{"payments", float64(7)}
	_, ferr := v.ParseS2SPolicy(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonChildWrongType, ferr.Reason)
}

func TestParseMirrorAccepts(t *testing.T) {
	v := NewValidator()
	doc := map[string]any{
		"billing@2": map[string]any{
			"serviceConfig": validParentRaw(),
			"policies": map[string]any{
				"edge": []any{validEdgeRaw("svc-1")},
				"s2s":  []any{validS2SRaw("svc-1")},
			},
		},
	}
	mirror, ferr := v.ParseMirror(doc)
	require.Nil(t, ferr)
	require.Contains(t, mirror, "billing@2")
	entry := mirror["billing@2"]
	assert.Len(t, entry.Policies.Edge, 1)
	assert.Len(t, entry.Policies.S2S, 1)
}

func TestParseMirrorRejectsKeyMismatch(t *testing.T) {
	v := NewValidator()
	doc := map[string]any{
		"wrong-key": map[string]any{
			"serviceConfig": validParentRaw(),
		},
	}
	_, ferr := v.ParseMirror(doc)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonKeyMismatch, ferr.Reason)
}

func TestParseMirrorRejectsChildWrongParent(t *testing.T) {
	v := NewValidator()
	doc := map[string]any{
		"billing@2": map[string]any{
			"serviceConfig": validParentRaw(),
			"policies": map[string]any{
				"edge": []any{validEdgeRaw("some-other-svc")},
			},
		},
	}
	_, ferr := v.ParseMirror(doc)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonChildWrongParent, ferr.Reason)
}

func TestParseMirrorRejectsDisabledParent(t *testing.T) {
	v := NewValidator()
	raw := validParentRaw()
	raw["enabled"] = false
	doc := map[string]any{
		"billing@2": map[string]any{
			"serviceConfig": raw,
		},
	}
	_, ferr := v.ParseMirror(doc)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonServiceDisabled, ferr.Reason)
}

func TestParseMirrorRejectsNonObject(t *testing.T) {
	v := NewValidator()
	_, ferr := v.ParseMirror([]any{"nope"})
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonChildWrongType, ferr.Reason)
}
