package facilitator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/svc-facilitator/internal/metrics"
)

// LoadResult is the DB Loader's output: a validated mirror plus the raw
// counts needed for audit and diagnostic logging.
type LoadResult struct {
	Map         MirrorMap
	RawCount    int
	ActiveCount int
}

// Loader reads visible service configs and their enabled route policies
// from the configuration database and strictly validates every record.
// It does not cache; caching is the Mirror Store's job.
type Loader struct {
	pool                     *pgxpool.Pool
	tableConfigs, tablePolicies string
	validator                *Validator
}

// NewLoader constructs a DB Loader against the given connection pool and
// table names.
func NewLoader(pool *pgxpool.Pool, tableConfigs, tablePolicies string) *Loader {
	return &Loader{pool: pool, tableConfigs: tableConfigs, tablePolicies: tablePolicies, validator: NewValidator()}
}

// Load runs the loader's aggregation protocol: visible parents, their
// enabled children grouped by svcconfigId, strict validation of both. Any
// malformed visible parent fails the entire load (fail-fast, §4.2) with
// up to five example keys in the error detail.
func (l *Loader) Load(ctx context.Context) (*LoadResult, error) {
	start := time.Now()
	result, err := l.load(ctx)
	metrics.LoaderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LoaderErrors.WithLabelValues(loaderErrorReason(err)).Inc()
	}
	return result, err
}

func loaderErrorReason(err error) string {
	if ferr, ok := err.(*Error); ok && ferr.Err == nil {
		return "validation"
	}
	return "io"
}

func (l *Loader) load(ctx context.Context) (*LoadResult, error) {
	if l.pool == nil {
		return nil, newLoaderError("loader has no database pool configured", nil)
	}

	parentRows, err := l.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, slug, version, enabled, internal_only, base_url,
		       outbound_api_prefix, expose_health, updated_at, updated_by, notes
		FROM %s
		WHERE internal_only = false AND enabled = true
	`, l.tableConfigs))
	if err != nil {
		return nil, newLoaderError("query service configs", err)
	}
	defer parentRows.Close()

	type rawParent struct {
		id, slug, updatedBy, notes string
		version                    int
		enabled, internalOnly      bool
		baseURL, prefix            string
		exposeHealth               bool
		updatedAt                  time.Time
	}

	var parents []rawParent
	for parentRows.Next() {
		var p rawParent
		var notes *string
		if err := parentRows.Scan(&p.id, &p.slug, &p.version, &p.enabled, &p.internalOnly,
			&p.baseURL, &p.prefix, &p.exposeHealth, &p.updatedAt, &p.updatedBy, &notes); err != nil {
			return nil, newLoaderError("scan service config row", err)
		}
		if notes != nil {
			p.notes = *notes
		}
		parents = append(parents, p)
	}
	if err := parentRows.Err(); err != nil {
		return nil, newLoaderError("iterate service config rows", err)
	}

	rawCount := len(parents)
	if rawCount == 0 {
		return &LoadResult{Map: MirrorMap{}, RawCount: 0, ActiveCount: 0}, nil
	}

	parentIDs := make([]string, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, p.id)
	}

	policyRows, err := l.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, svcconfig_id, type, slug, method, path, enabled, updated_at,
		       min_access_level, bearer_required, allowed_callers, scopes
		FROM %s
		WHERE enabled = true AND svcconfig_id = ANY($1)
	`, l.tablePolicies), parentIDs)
	if err != nil {
		return nil, newLoaderError("query route policies", err)
	}
	defer policyRows.Close()

	policiesByParent := make(map[string][]map[string]any)
	for policyRows.Next() {
		var id, svcID, ptype, slug, method, path string
		var enabled bool
		var updatedAt time.Time
		var minAccessLevel *int
		var bearerRequired *bool
		var allowedCallers, scopes []string

		if err := policyRows.Scan(&id, &svcID, &ptype, &slug, &method, &path, &enabled,
			&updatedAt, &minAccessLevel, &bearerRequired, &allowedCallers, &scopes); err != nil {
			return nil, newLoaderError("scan route policy row", err)
		}

		raw := map[string]any{
			"id": id, "svcconfigId": svcID, "type": ptype, "slug": slug,
			"method": method, "path": path, "enabled": enabled,
			"updatedAt": updatedAt.UTC().Format(time.RFC3339),
		}
		if minAccessLevel != nil {
			raw["minAccessLevel"] = float64(*minAccessLevel)
		}
		if ptype == string(PolicyTypeEdge) {
			if bearerRequired != nil {
				raw["bearerRequired"] = *bearerRequired
			} else {
				raw["bearerRequired"] = false
			}
		} else {
			if len(allowedCallers) > 0 {
				raw["allowedCallers"] = toAnySlice(allowedCallers)
			}
			if len(scopes) > 0 {
				raw["scopes"] = toAnySlice(scopes)
			}
		}

		policiesByParent[svcID] = append(policiesByParent[svcID], raw)
	}
	if err := policyRows.Err(); err != nil {
		return nil, newLoaderError("iterate route policy rows", err)
	}

	mirror := make(MirrorMap, len(parents))
	var badKeys []string

	for _, p := range parents {
		raw := map[string]any{
			"id": p.id, "slug": p.slug, "version": float64(p.version),
			"enabled": p.enabled, "internalOnly": p.internalOnly,
			"baseUrl": p.baseURL, "outboundApiPrefix": p.prefix,
			"exposeHealth": p.exposeHealth,
			"updatedAt":    p.updatedAt.UTC().Format(time.RFC3339),
			"updatedBy":    p.updatedBy, "notes": p.notes,
		}

		sc, ferr := l.validator.ParseParent(raw)
		if ferr != nil {
			badKeys = append(badKeys, fmt.Sprintf("%s@%d", p.slug, p.version))
			continue
		}

		var edges []EdgePolicy
		var s2ss []S2SPolicy
		for _, polRaw := range policiesByParent[p.id] {
			switch polRaw["type"] {
			case string(PolicyTypeEdge):
				ep, ferr := l.validator.ParseEdgePolicy(polRaw)
				if ferr != nil {
					badKeys = append(badKeys, fmt.Sprintf("%s@%d", p.slug, p.version))
					continue
				}
				edges = append(edges, ep)
			case string(PolicyTypeS2S):
				sp, ferr := l.validator.ParseS2SPolicy(polRaw)
				if ferr != nil {
					badKeys = append(badKeys, fmt.Sprintf("%s@%d", p.slug, p.version))
					continue
				}
				s2ss = append(s2ss, sp)
			}
		}

		key := SvcKey(sc.Slug, sc.Version)
		mirror[key] = MirrorEntry{ServiceConfig: sc, Policies: Policies{Edge: edges, S2S: s2ss}}
	}

	if len(badKeys) > 0 {
		if len(badKeys) > 5 {
			badKeys = badKeys[:5]
		}
		return nil, newLoaderError(fmt.Sprintf("malformed visible records: %s", strings.Join(badKeys, ", ")), nil)
	}

	return &LoadResult{Map: mirror, RawCount: rawCount, ActiveCount: len(mirror)}, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
