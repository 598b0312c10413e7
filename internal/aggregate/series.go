package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

// DailyAverages groups observations by calendar date in the business
// timezone (the rate authority's zone, not the observation origin's) and
// averages each day. Output is sorted ascending by date; input order is
// irrelevant.
func DailyAverages(obs []rates.PeerObservation, tz *time.Location) []rates.PeerDailyAverage {
	byDay := make(map[time.Time][]decimal.Decimal)
	for _, o := range obs {
		local := o.RecordedAt.In(tz)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
		byDay[day] = append(byDay[day], o.Price)
	}

	out := make([]rates.PeerDailyAverage, 0, len(byDay))
	for day, prices := range byDay {
		out = append(out, rates.PeerDailyAverage{Date: day, AveragePrice: Mean(prices)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// HourlyPoints buckets one day's observations by business-timezone hour and
// averages each bucket. Hours without observations are omitted.
func HourlyPoints(obs []rates.PeerObservation, day time.Time, tz *time.Location) []rates.HourlyPoint {
	local := day.In(tz)
	y, m, d := local.Date()

	byHour := make(map[int][]decimal.Decimal)
	for _, o := range obs {
		at := o.RecordedAt.In(tz)
		oy, om, od := at.Date()
		if oy != y || om != m || od != d {
			continue
		}
		byHour[at.Hour()] = append(byHour[at.Hour()], o.Price)
	}

	out := make([]rates.HourlyPoint, 0, len(byHour))
	for hour, prices := range byHour {
		out = append(out, rates.HourlyPoint{Hour: hour, Price: Mean(prices)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}
