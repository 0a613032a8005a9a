package pricing_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func period(start, end string) entity.Period {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	p, _ := entity.NewPeriod(s, e)
	return p
}

func intPtr(n int) *int { return &n }

// ── SalesFactSource ───────────────────────────────────────────────────────────

type fakeSales struct {
	records []repository.SalesRecord
	err     error
	calls   atomic.Int32
	country string
}

func (f *fakeSales) QuerySales(_ context.Context, country string, _, _ time.Time) ([]repository.SalesRecord, error) {
	f.calls.Add(1)
	f.country = country
	if f.err != nil {
		return nil, f.err
	}
	out := make([]repository.SalesRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func sale(ean, group string, qty int64, revenue, price string) repository.SalesRecord {
	return repository.SalesRecord{
		Barcode: ean,
		Group:   group,
		Price:   d(price),
		Revenue: d(revenue),
		Qty:     qty,
	}
}

// ── CompetitorPriceSource ─────────────────────────────────────────────────────

type fakeOffers struct {
	mu        sync.Mutex
	offers    []entity.CompetitorOffer
	sites     []entity.Site
	err       error
	sitesErr  error
	batches   [][]string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	delay     time.Duration
}

func (f *fakeOffers) FindByBarcodes(ctx context.Context, barcodes []string, siteIDs []int64) ([]entity.CompetitorOffer, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxFlight.Load()
		if n <= cur || f.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), barcodes...))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]struct{}, len(barcodes))
	for _, b := range barcodes {
		want[b] = struct{}{}
	}
	sites := make(map[int64]struct{}, len(siteIDs))
	for _, id := range siteIDs {
		sites[id] = struct{}{}
	}
	var out []entity.CompetitorOffer
	for _, o := range f.offers {
		if _, ok := want[o.Barcode]; !ok {
			continue
		}
		if _, ok := sites[o.SiteID]; !ok {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOffers) ListSites(_ context.Context, siteIDs []int64) ([]entity.Site, error) {
	if f.sitesErr != nil {
		return nil, f.sitesErr
	}
	byID := make(map[int64]entity.Site, len(f.sites))
	for _, s := range f.sites {
		byID[s.ID] = s
	}
	out := make([]entity.Site, 0, len(siteIDs))
	for _, id := range siteIDs {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func offer(ean string, siteID int64, price string) entity.CompetitorOffer {
	return entity.CompetitorOffer{Barcode: ean, SiteID: siteID, PriceExclTax: d(price)}
}

// ── PopularitySource ──────────────────────────────────────────────────────────

type fakePopularity struct {
	ranks    []entity.PopularityRank
	err      error
	panicMsg string
	block    bool
	calls    atomic.Int32
	lastArgs []string
}

func (f *fakePopularity) Search(ctx context.Context, barcodes []string, _ string) ([]entity.PopularityRank, error) {
	f.calls.Add(1)
	f.lastArgs = append([]string(nil), barcodes...)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ranks, nil
}
