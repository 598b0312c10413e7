package resolver

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

var caracas = time.FixedZone("VET", -4*3600)

// fakeHistoryStore is an in-memory RateHistoryStore for resolver tests.
type fakeHistoryStore struct {
	records []rates.HistoricalRecord
	err     error
}

func (f *fakeHistoryStore) UpsertOfficialRate(_ context.Context, rec rates.HistoricalRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistoryStore) LatestOnOrBefore(_ context.Context, date time.Time) (rates.HistoricalRecord, bool, error) {
	if f.err != nil {
		return rates.HistoricalRecord{}, false, f.err
	}
	var best *rates.HistoricalRecord
	for i := range f.records {
		if f.records[i].Date.After(date) {
			continue
		}
		if best == nil || f.records[i].Date.After(best.Date) {
			best = &f.records[i]
		}
	}
	if best == nil {
		return rates.HistoricalRecord{}, false, nil
	}
	return *best, true, nil
}

func (f *fakeHistoryStore) ListRecent(_ context.Context, limit int) ([]rates.HistoricalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]rates.HistoricalRecord, len(f.records))
	copy(out, f.records)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistoryStore) ListBetween(_ context.Context, from, to time.Time) ([]rates.HistoricalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []rates.HistoricalRecord
	for _, rec := range f.records {
		if !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func newTestResolver(t *testing.T, store *fakeHistoryStore) *Resolver {
	t.Helper()
	r, err := New(store, caracas, zerolog.Nop())
	if err != nil {
		t.Fatalf("构建 resolver 失败: %v", err)
	}
	return r
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, caracas)
}

func TestResolveRemoteWinsOverBundled(t *testing.T) {
	// 远端 2025-01-10 的记录 (47.15/50.80) 应覆盖内置数据集同日的值。
	store := &fakeHistoryStore{records: []rates.HistoricalRecord{
		{Date: day(2025, 1, 10), OfficialUSD: dec("47.15"), OfficialEUR: dec("50.80")},
	}}
	r := newTestResolver(t, store)

	snap, err := r.Resolve(context.Background(), day(2025, 1, 10), dec("38.03"), nil)
	if err != nil {
		t.Fatalf("resolve 失败: %v", err)
	}
	if !snap.OfficialUSD.Equal(dec("47.15")) || !snap.OfficialEUR.Equal(dec("50.80")) {
		t.Fatalf("官方价应取远端值: usd=%s eur=%s", snap.OfficialUSD, snap.OfficialEUR)
	}
	if snap.NextPeriod != nil {
		t.Fatal("当日记录不应被识别为下期汇率")
	}
	if !snap.BlendedPeerPrice.Equal(dec("38.03")) {
		t.Fatalf("混合价应原样透传: %s", snap.BlendedPeerPrice)
	}
	if snap.LastUpdatedLabel != "Today, 5:00 PM" {
		t.Fatalf("标签不正确: %q", snap.LastUpdatedLabel)
	}
}

func TestResolveFutureRateBecomesNextPeriod(t *testing.T) {
	// 机构在周五提前发布下周一的汇率:记录日期晚于 today。
	store := &fakeHistoryStore{records: []rates.HistoricalRecord{
		{Date: day(2025, 1, 13), OfficialUSD: dec("54.00"), OfficialEUR: dec("56.40")},
	}}
	r := newTestResolver(t, store)

	today := day(2025, 1, 10)
	snap, err := r.Resolve(context.Background(), today, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("resolve 失败: %v", err)
	}

	if snap.NextPeriod == nil {
		t.Fatal("晚于 today 的记录应作为下期汇率暴露")
	}
	if !snap.NextPeriod.USD.Equal(dec("54.00")) {
		t.Fatalf("下期 USD 不正确: %s", snap.NextPeriod.USD)
	}
	if !snap.NextPeriod.EffectiveDate.Equal(day(2025, 1, 13)) {
		t.Fatalf("下期生效日不正确: %s", snap.NextPeriod.EffectiveDate)
	}

	// 当前值回落到 today 当日(内置数据集),而不是未来记录。
	if !snap.OfficialUSD.Equal(dec("53.58")) {
		t.Fatalf("当前官方价不应使用未来记录: %s", snap.OfficialUSD)
	}
}

func TestResolveNoDataReturnsZeroSentinel(t *testing.T) {
	// 早于任何记录的日期:显式零值,不是错误。
	store := &fakeHistoryStore{}
	r := newTestResolver(t, store)

	snap, err := r.Resolve(context.Background(), day(2023, 6, 1), dec("38.00"), nil)
	if err != nil {
		t.Fatalf("无数据不应报错: %v", err)
	}
	if !snap.OfficialUSD.IsZero() || !snap.OfficialEUR.IsZero() {
		t.Fatalf("无数据应返回零哨兵: usd=%s eur=%s", snap.OfficialUSD, snap.OfficialEUR)
	}
	if !snap.BlendedPeerPrice.Equal(dec("38.00")) {
		t.Fatalf("混合价仍应透传: %s", snap.BlendedPeerPrice)
	}
	if snap.LastUpdatedLabel != "" {
		t.Fatalf("无数据不应有更新标签: %q", snap.LastUpdatedLabel)
	}
}

func TestResolveWeekendFallsBackToFriday(t *testing.T) {
	// 2025-01-11 是周六,没有记录;应回落到 1 月 10 日(周五)。
	store := &fakeHistoryStore{}
	r := newTestResolver(t, store)

	snap, err := r.Resolve(context.Background(), day(2025, 1, 11), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("resolve 失败: %v", err)
	}
	if !snap.OfficialDate.Equal(day(2025, 1, 10)) {
		t.Fatalf("周末应回落到最近的发布日: %s", snap.OfficialDate)
	}
	if snap.LastUpdatedLabel != "Yesterday, 5:00 PM" {
		t.Fatalf("标签不正确: %q", snap.LastUpdatedLabel)
	}
}

func TestResolveDayChangePct(t *testing.T) {
	store := &fakeHistoryStore{records: []rates.HistoricalRecord{
		{Date: day(2025, 1, 14), OfficialUSD: dec("55.00"), OfficialEUR: dec("57.00")},
		{Date: day(2025, 1, 13), OfficialUSD: dec("50.00"), OfficialEUR: dec("57.00")},
	}}
	r := newTestResolver(t, store)

	snap, err := r.Resolve(context.Background(), day(2025, 1, 14), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("resolve 失败: %v", err)
	}
	if !snap.USDDayChangePct.Equal(dec("10")) {
		t.Fatalf("USD 日涨跌幅应为 10%%, 实际 %s", snap.USDDayChangePct)
	}
	if !snap.EURDayChangePct.IsZero() {
		t.Fatalf("EUR 未变动应为 0, 实际 %s", snap.EURDayChangePct)
	}
}

func TestResolveDayChangeZeroGuard(t *testing.T) {
	// 前一日为零值记录时跳过除法,返回 0 而不是 panic 或 Inf。
	store := &fakeHistoryStore{records: []rates.HistoricalRecord{
		{Date: day(2026, 3, 2), OfficialUSD: dec("55.00")},
		{Date: day(2026, 3, 1), OfficialUSD: decimal.Zero},
	}}
	r := newTestResolver(t, store)

	snap, err := r.Resolve(context.Background(), day(2026, 3, 2), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("resolve 失败: %v", err)
	}
	if !snap.USDDayChangePct.IsZero() {
		t.Fatalf("前值为零时涨跌幅应为 0, 实际 %s", snap.USDDayChangePct)
	}
}

func TestResolveStoreError(t *testing.T) {
	wantErr := errors.New("connection refused")
	r := newTestResolver(t, &fakeHistoryStore{err: wantErr})

	_, err := r.Resolve(context.Background(), day(2025, 1, 10), decimal.Zero, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("存储错误应向上传播: %v", err)
	}
}

func TestFormatUpdateLabel(t *testing.T) {
	r := newTestResolver(t, &fakeHistoryStore{})
	today := day(2025, 1, 10) // Friday

	cases := []struct {
		record time.Time
		want   string
	}{
		{day(2025, 1, 10), "Today, 5:00 PM"},
		{day(2025, 1, 9), "Yesterday, 5:00 PM"},
		{day(2025, 1, 6), "Monday 6/1/25, 5:00 PM"},
		{day(2024, 12, 27), "Friday 27/12/24, 5:00 PM"},
	}
	for _, tc := range cases {
		if got := r.FormatUpdateLabel(tc.record, today); got != tc.want {
			t.Errorf("FormatUpdateLabel(%s): want %q got %q", tc.record.Format("2006-01-02"), tc.want, got)
		}
	}
}

func TestBundledRecordsSortedAscending(t *testing.T) {
	r := newTestResolver(t, &fakeHistoryStore{})
	records := r.BundledRecords()
	if len(records) == 0 {
		t.Fatal("内置数据集不应为空")
	}
	for i := 1; i < len(records); i++ {
		if !records[i-1].Date.Before(records[i].Date) {
			t.Fatalf("内置记录应严格升序: %s >= %s", records[i-1].Date, records[i].Date)
		}
	}
}
