package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// The archiver only needs the time-ranged query and delete methods, not the
// full store interfaces. The Postgres stores satisfy these implicitly.

// TradeArchiveStore reads and prunes trade receipts for archival.
type TradeArchiveStore interface {
	// ListBefore returns all trades that closed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	// DeleteBefore removes all trades that closed strictly before the cutoff
	// and returns the number of rows deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditArchiveStore reads and prunes audit rows for archival. ListBefore is
// paged because the audit log grows far faster than the trade ledger.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// auditBatchSize bounds how many audit rows one pass exports. A backlog
// larger than this drains across successive scheduled runs.
const auditBatchSize = 10000

// Archiver implements domain.Archiver: it exports aged rows to the archive
// bucket as day-partitioned JSONL and deletes them from the primary store
// only after every uploaded object has been verified readable.
type Archiver struct {
	writer     domain.BlobWriter
	reader     domain.BlobReader
	trades     TradeArchiveStore
	audit      AuditArchiveStore
	journal    domain.AuditStore
	logger     *slog.Logger
	auditBatch int
}

// NewArchiver creates a new Archiver. journal receives one audit record per
// completed pass and may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	trades TradeArchiveStore,
	audit AuditArchiveStore,
	journal domain.AuditStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:     writer,
		reader:     reader,
		trades:     trades,
		audit:      audit,
		journal:    journal,
		logger:     logger.With(slog.String("component", "blob")),
		auditBatch: auditBatchSize,
	}
}

var _ domain.Archiver = (*Archiver)(nil)

// ArchiveTrades exports all trades closed before the cutoff to
// archive/trades/YYYY/MM/DD/trades-<stamp>.jsonl, one object per exit day,
// then deletes the exported rows. Returns the number of trades archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	byDay, days := groupByDay(trades, func(t domain.TradeRecord) time.Time { return t.ExitTime })

	paths, err := uploadDays(ctx, a, "trades", byDay, days)
	if err != nil {
		return 0, err
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades delete: %w", err)
	}

	count := int64(len(trades))
	a.journalEvent(ctx, "archive.trades", map[string]any{
		"paths":   paths,
		"rows":    count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	})
	return count, nil
}

// ArchiveAudit exports one batch of audit rows created before the cutoff to
// archive/audit/YYYY/MM/DD/audit-<stamp>.jsonl and deletes the exported rows.
// When the batch comes back full, deletion stops at the last archived
// timestamp so rows the page truncated are never lost; the next pass picks
// them up. Returns the number of rows archived.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before, a.auditBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	byDay, days := groupByDay(entries, func(e domain.AuditEntry) time.Time { return e.CreatedAt })

	paths, err := uploadDays(ctx, a, "audit", byDay, days)
	if err != nil {
		return 0, err
	}

	deleteBefore := before
	if len(entries) == a.auditBatch {
		deleteBefore = entries[len(entries)-1].CreatedAt
	}
	deleted, err := a.audit.DeleteBefore(ctx, deleteBefore)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit delete: %w", err)
	}

	count := int64(len(entries))
	a.journalEvent(ctx, "archive.audit", map[string]any{
		"paths":   paths,
		"rows":    count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	})
	return count, nil
}

// verify confirms an uploaded object is readable. Nothing is deleted from
// the primary store until every object of the pass has passed this check.
func (a *Archiver) verify(ctx context.Context, path string) error {
	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: verify %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("s3blob: verify %s: object missing after upload", path)
	}
	return nil
}

// journalEvent records the completed pass in the audit log. Failures are
// logged and swallowed: the archive itself already succeeded.
func (a *Archiver) journalEvent(ctx context.Context, event string, detail map[string]any) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Log(ctx, event, detail); err != nil {
		a.logger.Warn("audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// groupByDay buckets rows by the UTC calendar day of their timestamp and
// returns the day keys in ascending order.
func groupByDay[T any](rows []T, at func(T) time.Time) (map[string][]T, []string) {
	byDay := make(map[string][]T)
	for _, row := range rows {
		day := at(row).UTC().Format("2006/01/02")
		byDay[day] = append(byDay[day], row)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)
	return byDay, days
}

// uploadDays writes one JSONL object per day bucket and verifies each upload.
// Objects carry a per-pass stamp so a re-run can never overwrite an earlier
// export. Returns the uploaded paths.
func uploadDays[T any](ctx context.Context, a *Archiver, kind string, byDay map[string][]T, days []string) ([]string, error) {
	stamp := time.Now().UTC().Format("20060102T150405Z")

	paths := make([]string, 0, len(days))
	for _, day := range days {
		buf, err := marshalJSONL(byDay[day])
		if err != nil {
			return nil, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
		}

		path := fmt.Sprintf("archive/%s/%s/%s-%s.jsonl", kind, day, kind, stamp)
		if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize); err != nil {
			return nil, fmt.Errorf("s3blob: archive %s upload %s: %w", kind, path, err)
		}
		if err := a.verify(ctx, path); err != nil {
			return nil, err
		}

		a.logger.Debug("archive object uploaded",
			slog.String("path", path),
			slog.Int("rows", len(byDay[day])),
		)
		paths = append(paths, path)
	}
	return paths, nil
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
