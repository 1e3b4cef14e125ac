package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

type memBlob struct {
	objects map[string][]byte
	putErr  error
	missing bool // Exists reports false even after a successful Put
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	return m.store(path, data)
}

func (m *memBlob) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	return m.store(path, data)
}

func (m *memBlob) store(path string, data io.Reader) error {
	if m.putErr != nil {
		return m.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = buf
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, buf := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(buf))})
		}
	}
	return infos, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	if m.missing {
		return false, nil
	}
	_, ok := m.objects[path]
	return ok, nil
}

type fakeTradeRows struct {
	rows    []domain.TradeRecord
	listErr error
	deletes []time.Time
}

func (f *fakeTradeRows) ListBefore(_ context.Context, before time.Time) ([]domain.TradeRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.TradeRecord
	for _, r := range f.rows {
		if r.ExitTime.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTradeRows) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.deletes = append(f.deletes, before)
	var kept []domain.TradeRecord
	var deleted int64
	for _, r := range f.rows {
		if r.ExitTime.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return deleted, nil
}

type fakeAuditRows struct {
	rows    []domain.AuditEntry
	deletes []time.Time
}

func (f *fakeAuditRows) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, r := range f.rows {
		if r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAuditRows) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deletes = append(f.deletes, cutoff)
	var kept []domain.AuditEntry
	var deleted int64
	for _, r := range f.rows {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return deleted, nil
}

type fakeJournal struct {
	events []string
	err    error
}

func (f *fakeJournal) Log(_ context.Context, event string, _ map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeJournal) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closedTrade(id string, exit time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:    id,
		PositionID: "pos-" + id,
		MarketID:   "mkt-1",
		MatchID:    "match-1",
		Game:       domain.GameLoL,
		Side:       domain.OrderSideBuy,
		TokenType:  domain.TokenYes,
		Size:       40,
		EntryPrice: 0.50,
		ExitPrice:  0.58,
		NetPnl:     3.20,
		EntryTime:  exit.Add(-90 * time.Second),
		ExitTime:   exit,
		ExitReason: domain.ExitTakeProfit,
	}
}

func auditRow(id int64, at time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		ID:        id,
		Event:     "order.placed",
		Detail:    map[string]any{"order_id": id},
		CreatedAt: at,
	}
}

func TestArchiveTradesUploadsPerDayAndDeletes(t *testing.T) {
	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeRows{rows: []domain.TradeRecord{
		closedTrade("t1", time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)),
		closedTrade("t2", time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)),
		closedTrade("t3", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)),
		closedTrade("t4", time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)), // inside retention
	}}
	blob := newMemBlob()
	journal := &fakeJournal{}
	arch := NewArchiver(blob, blob, trades, &fakeAuditRows{}, journal, testLogger())

	n, err := arch.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// One object per exit day, date-partitioned and stamped.
	require.Len(t, blob.objects, 2)
	paths := make([]string, 0, 2)
	for p := range blob.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	assert.True(t, strings.HasPrefix(paths[0], "archive/trades/2025/06/01/trades-"), paths[0])
	assert.True(t, strings.HasPrefix(paths[1], "archive/trades/2025/06/02/trades-"), paths[1])
	assert.True(t, strings.HasSuffix(paths[0], ".jsonl"), paths[0])

	// The day-one object holds both trades as JSONL.
	lines := bytes.Split(bytes.TrimSpace(blob.objects[paths[0]]), []byte("\n"))
	require.Len(t, lines, 2)
	var rec domain.TradeRecord
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "t1", rec.TradeID)
	assert.Equal(t, domain.ExitTakeProfit, rec.ExitReason)

	// Rows are deleted with the original cutoff; the fresh trade survives.
	require.Len(t, trades.deletes, 1)
	assert.Equal(t, cutoff, trades.deletes[0])
	require.Len(t, trades.rows, 1)
	assert.Equal(t, "t4", trades.rows[0].TradeID)

	assert.Equal(t, []string{"archive.trades"}, journal.events)
}

func TestArchiveTradesNothingToDo(t *testing.T) {
	blob := newMemBlob()
	trades := &fakeTradeRows{}
	arch := NewArchiver(blob, blob, trades, &fakeAuditRows{}, nil, testLogger())

	n, err := arch.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)
	assert.Empty(t, trades.deletes)
}

func TestArchiveTradesKeepsRowsWhenVerifyFails(t *testing.T) {
	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeRows{rows: []domain.TradeRecord{
		closedTrade("t1", time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)),
	}}
	blob := newMemBlob()
	blob.missing = true
	arch := NewArchiver(blob, blob, trades, &fakeAuditRows{}, nil, testLogger())

	_, err := arch.ArchiveTrades(context.Background(), cutoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object missing after upload")
	assert.Empty(t, trades.deletes, "rows must survive a failed verification")
	assert.Len(t, trades.rows, 1)
}

func TestArchiveTradesKeepsRowsWhenUploadFails(t *testing.T) {
	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeRows{rows: []domain.TradeRecord{
		closedTrade("t1", time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)),
	}}
	blob := newMemBlob()
	blob.putErr = errors.New("access denied")
	arch := NewArchiver(blob, blob, trades, &fakeAuditRows{}, nil, testLogger())

	_, err := arch.ArchiveTrades(context.Background(), cutoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload")
	assert.Empty(t, trades.deletes)
}

func TestArchiveAuditDrainsAcrossPasses(t *testing.T) {
	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	audit := &fakeAuditRows{rows: []domain.AuditEntry{
		auditRow(1, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
		auditRow(2, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)),
		auditRow(3, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)),
	}}
	blob := newMemBlob()
	arch := NewArchiver(blob, blob, &fakeTradeRows{}, audit, nil, testLogger())
	arch.auditBatch = 2

	// First pass fills the batch, so deletion stops at the last archived
	// timestamp instead of the cutoff.
	n, err := arch.ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.Len(t, audit.deletes, 1)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), audit.deletes[0])

	// The boundary row survives strictly-before deletion and is re-exported
	// next pass; a duplicate in the archive beats losing a row.
	require.Len(t, audit.rows, 2)
	assert.EqualValues(t, 2, audit.rows[0].ID)

	// Second pass is full again (rows 2 and 3), third drains the remainder
	// and finally deletes through the cutoff.
	n, err = arch.ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = arch.ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.Len(t, audit.deletes, 3)
	assert.Equal(t, cutoff, audit.deletes[2])
	assert.Empty(t, audit.rows)
}

func TestArchiveAuditPartialBatchDeletesThroughCutoff(t *testing.T) {
	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	audit := &fakeAuditRows{rows: []domain.AuditEntry{
		auditRow(1, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
	}}
	blob := newMemBlob()
	journal := &fakeJournal{}
	arch := NewArchiver(blob, blob, &fakeTradeRows{}, audit, journal, testLogger())

	n, err := arch.ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.Len(t, audit.deletes, 1)
	assert.Equal(t, cutoff, audit.deletes[0])
	assert.Empty(t, audit.rows)
	assert.Equal(t, []string{"archive.audit"}, journal.events)
}

func TestArchiveSurvivesJournalFailure(t *testing.T) {
	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeRows{rows: []domain.TradeRecord{
		closedTrade("t1", time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)),
	}}
	blob := newMemBlob()
	journal := &fakeJournal{err: errors.New("audit table locked")}
	arch := NewArchiver(blob, blob, trades, &fakeAuditRows{}, journal, testLogger())

	n, err := arch.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err, "a journal failure must not fail the pass")
	assert.EqualValues(t, 1, n)
}

func TestGroupByDaySortsDays(t *testing.T) {
	rows := []domain.AuditEntry{
		auditRow(1, time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC)),
		auditRow(2, time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC)),
		auditRow(3, time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC)),
	}
	byDay, days := groupByDay(rows, func(e domain.AuditEntry) time.Time { return e.CreatedAt })
	assert.Equal(t, []string{"2025/06/01", "2025/06/03"}, days)
	assert.Len(t, byDay["2025/06/03"], 2)
}

func TestMarshalJSONLKeepsHTML(t *testing.T) {
	buf, err := marshalJSONL([]map[string]string{
		{"q": "<b>a&b</b>"},
		{"q": "second"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(buf), "<b>a&b</b>")
	lines := bytes.Split(bytes.TrimSpace(buf), []byte("\n"))
	assert.Len(t, lines, 2)
}
