package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ves-rate-watch/internal/rates"
)

func testCache(t *testing.T) (*Cache, *time.Time) {
	t.Helper()
	c, err := OpenInMemory(DefaultTTLs(), zerolog.Nop())
	if err != nil {
		t.Fatalf("打开内存缓存失败: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	return c, &now
}

func TestGetMissingKey(t *testing.T) {
	c, _ := testCache(t)

	var out []rates.HistoricalRecord
	stale, ok, err := c.Get(KindHistory, "30d", &out)
	if err != nil {
		t.Fatalf("未写入的键不应报错: %v", err)
	}
	if ok || stale {
		t.Fatalf("未写入的键应返回 ok=false: stale=%v ok=%v", stale, ok)
	}
}

func TestHistoryTTLExpiry(t *testing.T) {
	c, now := testCache(t)

	records := []rates.HistoricalRecord{{Date: now.AddDate(0, 0, -1)}}
	if err := c.Put(KindHistory, "30d", records); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	var out []rates.HistoricalRecord
	stale, ok, err := c.Get(KindHistory, "30d", &out)
	if err != nil || !ok {
		t.Fatalf("读取失败: ok=%v err=%v", ok, err)
	}
	if stale {
		t.Fatal("刚写入的条目不应过期")
	}
	if len(out) != 1 {
		t.Fatalf("负载丢失: %#v", out)
	}

	// 60 秒 TTL:59 秒仍新鲜,60 秒整点过期。
	*now = now.Add(59 * time.Second)
	if stale, _, _ := c.Get(KindHistory, "30d", nil); stale {
		t.Fatal("59 秒时不应过期")
	}
	*now = now.Add(time.Second)
	if stale, _, _ := c.Get(KindHistory, "30d", nil); !stale {
		t.Fatal("60 秒时应过期")
	}

	// Stale entries stay readable until overwritten.
	out = nil
	if _, ok, _ := c.Get(KindHistory, "30d", &out); !ok || len(out) != 1 {
		t.Fatal("过期条目仍应可读")
	}
}

func TestSnapshotNeverExpires(t *testing.T) {
	c, now := testCache(t)

	if err := c.Put(KindSnapshot, "current", rates.RateSnapshot{}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	*now = now.Add(365 * 24 * time.Hour)
	stale, ok, err := c.Get(KindSnapshot, "current", nil)
	if err != nil || !ok {
		t.Fatalf("读取失败: ok=%v err=%v", ok, err)
	}
	if stale {
		t.Fatal("快照没有 TTL, 永不过期")
	}
}

func TestPutOverwritesAndResetsAge(t *testing.T) {
	c, now := testCache(t)

	if err := c.Put(KindPeerDaily, "7d", []rates.PeerDailyAverage{{}}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	*now = now.Add(31 * time.Minute)
	if stale, _, _ := c.Get(KindPeerDaily, "7d", nil); !stale {
		t.Fatal("30 分钟后应过期")
	}

	if err := c.Put(KindPeerDaily, "7d", []rates.PeerDailyAverage{{}, {}}); err != nil {
		t.Fatalf("覆盖写入失败: %v", err)
	}
	var out []rates.PeerDailyAverage
	stale, _, _ := c.Get(KindPeerDaily, "7d", &out)
	if stale {
		t.Fatal("覆盖后应重新计龄")
	}
	if len(out) != 2 {
		t.Fatalf("覆盖后应读到新负载: %#v", out)
	}
}

func TestHourlyRefusesEmptyPayload(t *testing.T) {
	c, _ := testCache(t)

	if err := c.Put(KindHourly, "2025-01-10", []rates.HourlyPoint{}); err != nil {
		t.Fatalf("空负载应被静默跳过而不是报错: %v", err)
	}
	if _, ok, _ := c.Get(KindHourly, "2025-01-10", nil); ok {
		t.Fatal("空的小时序列不应被缓存")
	}

	// 非空负载照常缓存。
	points := []rates.HourlyPoint{{Hour: 9}}
	if err := c.Put(KindHourly, "2025-01-10", points); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, ok, _ := c.Get(KindHourly, "2025-01-10", nil); !ok {
		t.Fatal("非空的小时序列应被缓存")
	}
}

func TestHourlyEmptyDoesNotClobberExisting(t *testing.T) {
	c, _ := testCache(t)

	if err := c.Put(KindHourly, "2025-01-10", []rates.HourlyPoint{{Hour: 9}}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := c.Put(KindHourly, "2025-01-10", []rates.HourlyPoint{}); err != nil {
		t.Fatalf("空负载不应报错: %v", err)
	}

	var out []rates.HourlyPoint
	if _, ok, _ := c.Get(KindHourly, "2025-01-10", &out); !ok || len(out) != 1 {
		t.Fatalf("空负载不应覆盖已有条目: %#v", out)
	}
}

func TestLastUpdateMarker(t *testing.T) {
	c, _ := testCache(t)

	if _, ok, err := c.LastUpdate(); ok || err != nil {
		t.Fatalf("初始状态不应有标记: ok=%v err=%v", ok, err)
	}

	at := time.Date(2025, 1, 10, 17, 0, 0, 0, time.UTC)
	if err := c.SetLastUpdate(at); err != nil {
		t.Fatalf("写入标记失败: %v", err)
	}
	got, ok, err := c.LastUpdate()
	if err != nil || !ok {
		t.Fatalf("读取标记失败: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("标记时间不匹配: want %s got %s", at, got)
	}
}

func TestWindowFiredMarkers(t *testing.T) {
	c, _ := testCache(t)
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	fired, err := c.WindowFired("afternoon", day)
	if err != nil || fired {
		t.Fatalf("未标记的窗口不应已触发: fired=%v err=%v", fired, err)
	}

	if err := c.MarkWindowFired("afternoon", day); err != nil {
		t.Fatalf("标记失败: %v", err)
	}
	if fired, _ := c.WindowFired("afternoon", day); !fired {
		t.Fatal("标记后应报告已触发")
	}

	// 同窗口不同日期、同日期不同窗口互不影响。
	if fired, _ := c.WindowFired("afternoon", day.AddDate(0, 0, 1)); fired {
		t.Fatal("次日同窗口不应已触发")
	}
	if fired, _ := c.WindowFired("evening", day); fired {
		t.Fatal("同日其他窗口不应已触发")
	}
}
