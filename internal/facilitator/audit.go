package facilitator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/svc-facilitator/internal/metrics"
)

// AuditBucket classifies one database row against the current mirror
// during a sweep.
type AuditBucket string

const (
	BucketIncluded     AuditBucket = "included"
	BucketDisabled     AuditBucket = "disabled"
	BucketInternalOnly AuditBucket = "internal_only"
	BucketInvalid      AuditBucket = "invalid"
)

// AuditReport summarizes one sweep: how many database rows fell into
// each bucket, and up to a handful of example keys per mismatching
// bucket for log inspection.
type AuditReport struct {
	Counts   map[AuditBucket]int
	Examples map[AuditBucket][]string
	Drift    bool
}

const maxAuditExamples = 10

// Auditor periodically compares the live database against the current
// mirror snapshot to detect drift: visible rows (enabled, not
// internal-only) whose key is missing from the mirror. Mirror keys with no
// matching visible row are not reported. It never mutates the mirror; it
// only reports.
type Auditor struct {
	pool          *pgxpool.Pool
	tableConfigs  string
	store         *Store
	validator     *Validator
	logger        *slog.Logger
}

// NewAuditor constructs an Audit Sweep component.
func NewAuditor(pool *pgxpool.Pool, tableConfigs string, store *Store, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{pool: pool, tableConfigs: tableConfigs, store: store, validator: NewValidator(), logger: logger}
}

// Run executes a single sweep. It never panics and returns no error: a
// failed query or row iteration is logged and marks the report as drift,
// and a row that fails to scan is logged and counted in the invalid bucket.
func (a *Auditor) Run(ctx context.Context) AuditReport {
	report := AuditReport{
		Counts:   make(map[AuditBucket]int),
		Examples: make(map[AuditBucket][]string),
	}

	rows, err := a.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, slug, version, enabled, internal_only, base_url,
		       outbound_api_prefix, expose_health, updated_at, updated_by, notes
		FROM %s
	`, a.tableConfigs))
	if err != nil {
		a.logger.Error("audit sweep query failed", "error", err)
		report.Drift = true
		return report
	}
	defer rows.Close()

	snap := a.store.Current()
	var mirrorMap MirrorMap
	if snap != nil {
		mirrorMap = snap.Map
	}

	for rows.Next() {
		var id, slug, updatedBy string
		var notes *string
		var version int
		var enabled, internalOnly, exposeHealth bool
		var baseURL, prefix string
		var updatedAt time.Time

		if err := rows.Scan(&id, &slug, &version, &enabled, &internalOnly,
			&baseURL, &prefix, &exposeHealth, &updatedAt, &updatedBy, &notes); err != nil {
			a.logger.Warn("audit sweep scan failed", "error", err)
			report.Counts[BucketInvalid]++
			continue
		}

		key := SvcKey(slug, version)
		_, inMirror := mirrorMap[key]

		bucket := a.classify(enabled, internalOnly, inMirror)
		report.Counts[bucket]++

		if bucket != BucketIncluded && len(report.Examples[bucket]) < maxAuditExamples {
			report.Examples[bucket] = append(report.Examples[bucket], key)
		}
	}
	if err := rows.Err(); err != nil {
		a.logger.Error("audit sweep iteration failed", "error", err)
		report.Drift = true
	}

	for bucket, examples := range report.Examples {
		if bucket == BucketInvalid && len(examples) > 0 {
			report.Drift = true
		}
	}

	for _, bucket := range []AuditBucket{BucketIncluded, BucketDisabled, BucketInternalOnly, BucketInvalid} {
		metrics.AuditDiscrepancies.WithLabelValues(string(bucket)).Set(float64(report.Counts[bucket]))
	}

	if report.Drift {
		a.logger.Warn("audit sweep found drift", "counts", report.Counts, "examples", report.Examples)
	} else {
		a.logger.Info("audit sweep clean", "counts", report.Counts)
	}

	return report
}

// classify buckets one database row by its visibility and its presence in
// the mirror. A visible row (enabled, not internal-only) is included when
// its key is in the mirror and invalid when it is not; disabled and
// internal-only rows get their own buckets whether or not their key is in
// the mirror, and are not counted as drift.
func (a *Auditor) classify(enabled, internalOnly, inMirror bool) AuditBucket {
	switch {
	case !enabled:
		return BucketDisabled
	case internalOnly:
		return BucketInternalOnly
	case inMirror:
		return BucketIncluded
	default:
		return BucketInvalid
	}
}

// RunPeriodically runs Run on the given interval until ctx is canceled.
func (a *Auditor) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Run(ctx)
		}
	}
}
