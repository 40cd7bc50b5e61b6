// Package playback buckets irregular pressure samples into fixed time windows
// and reshapes them into chart-ready series.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidArgument marks malformed aggregation input; handlers map it to a
// client error.
var ErrInvalidArgument = errors.New("invalid argument")

// TimeSlice holds the per-spot average pressure of one bucket on one date.
// Averages always contains an entry for every requested spot.
type TimeSlice struct {
	Label    string
	Date     string
	Averages map[string]float64
}

// BucketSource yields pre-grouped bucket averages for one calendar day.
type BucketSource interface {
	BucketAverages(ctx context.Context, date string, spotIDs []string, widthMinutes int) ([]BucketAverage, error)
}

// Aggregator is the bucketing engine: it turns day-scoped grouped rows into
// ordered, gap-filled time slices.
type Aggregator struct {
	source BucketSource
}

// NewAggregator creates an Aggregator reading from the given source.
func NewAggregator(source BucketSource) *Aggregator {
	return &Aggregator{source: source}
}

// Aggregate produces one TimeSlice per (date, occupied bucket), in date order
// then ascending bucket order. Dates may carry a time component, which is
// ignored; duplicates are processed independently. Buckets with no readings
// produce no slice, but every emitted slice carries a value for every
// requested spot, defaulting to 0.
func (a *Aggregator) Aggregate(ctx context.Context, dates []string, spotIDs []string, widthMinutes int) ([]TimeSlice, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: dates must not be empty", ErrInvalidArgument)
	}
	if len(spotIDs) == 0 {
		return nil, fmt.Errorf("%w: spots must not be empty", ErrInvalidArgument)
	}
	if widthMinutes <= 0 {
		return nil, fmt.Errorf("%w: timeRange must be greater than 0", ErrInvalidArgument)
	}

	var slices []TimeSlice
	for _, date := range dates {
		dateOnly := strings.SplitN(date, " ", 2)[0]
		if _, err := time.Parse("2006-01-02", dateOnly); err != nil {
			return nil, fmt.Errorf("%w: bad date %q", ErrInvalidArgument, date)
		}

		rows, err := a.source.BucketAverages(ctx, dateOnly, spotIDs, widthMinutes)
		if err != nil {
			return nil, err
		}

		grouped := make(map[int]map[string]float64)
		for _, row := range rows {
			bucket, ok := grouped[row.Bucket]
			if !ok {
				bucket = make(map[string]float64)
				grouped[row.Bucket] = bucket
			}
			bucket[row.SpotID] = row.AvgPSI
		}

		buckets := make([]int, 0, len(grouped))
		for b := range grouped {
			buckets = append(buckets, b)
		}
		sort.Ints(buckets)

		for _, b := range buckets {
			averages := make(map[string]float64, len(spotIDs))
			for _, spot := range spotIDs {
				averages[spot] = grouped[b][spot]
			}
			slices = append(slices, TimeSlice{
				Label:    bucketLabel(b, widthMinutes) + " | " + dateOnly,
				Date:     dateOnly,
				Averages: averages,
			})
		}
	}

	return slices, nil
}

// bucketLabel renders the window of bucket b as "HH:MM - HH:MM" in
// minutes-since-midnight; the last bucket of a day may end at "24:00".
func bucketLabel(b, widthMinutes int) string {
	start := b * widthMinutes
	end := start + widthMinutes
	return fmt.Sprintf("%02d:%02d - %02d:%02d", start/60, start%60, end/60, end%60)
}
