package model

import "time"

// Timeframe is one candle aggregation interval.
type Timeframe struct {
	Name     string
	Duration time.Duration
}

// The active timeframes. Every BID tick updates one candle per entry.
var timeframes = []Timeframe{
	{Name: "M1", Duration: time.Minute},
	{Name: "H1", Duration: time.Hour},
	{Name: "D1", Duration: 24 * time.Hour},
}

// Timeframes returns the active timeframe set in aggregation order.
func Timeframes() []Timeframe {
	return timeframes
}

// Bucket aligns t down to the start of its timeframe bucket:
// floor(unixMs / durationMs) * durationMs, in UTC.
func (tf Timeframe) Bucket(t time.Time) time.Time {
	ms := t.UnixMilli()
	d := tf.Duration.Milliseconds()
	return time.UnixMilli(ms - ms%d).UTC()
}
