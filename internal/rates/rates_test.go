package rates

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	for _, valid := range []string{"7d", "30d", "90d", "1y"} {
		if _, err := ParsePeriod(valid); err != nil {
			t.Errorf("ParsePeriod(%q) 不应报错: %v", valid, err)
		}
	}
	for _, bad := range []string{"", "14d", "week"} {
		if _, err := ParsePeriod(bad); err == nil {
			t.Errorf("ParsePeriod(%q) 应报错", bad)
		}
	}
}

func TestRateLimitedWaitSeconds(t *testing.T) {
	cases := []struct {
		wait time.Duration
		want int
	}{
		{10 * time.Second, 10},
		{9500 * time.Millisecond, 10}, // 向上取整
		{200 * time.Millisecond, 1},   // 最小 1 秒
		{0, 1},
	}
	for _, tc := range cases {
		err := &RateLimitedError{Wait: tc.wait}
		if got := err.WaitSeconds(); got != tc.want {
			t.Errorf("WaitSeconds(%s): want %d got %d", tc.wait, tc.want, got)
		}
	}
}
