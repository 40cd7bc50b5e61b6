package playback

import "fmt"

// Series is the value row of one spot across every slice.
type Series struct {
	SpotID string    `json:"idSpot"`
	Values []float64 `json:"data"`
}

// ChartData is the categories/series structure consumed directly by the
// dashboard charts.
type ChartData struct {
	Categories []string `json:"categories"`
	Series     []Series `json:"series"`
}

// Reshape converts slices into chart categories plus one series per spot, in
// the given spot order. Values line up with categories index-for-index.
func Reshape(slices []TimeSlice, spotIDs []string) (ChartData, error) {
	if len(spotIDs) == 0 {
		return ChartData{}, fmt.Errorf("%w: spots must not be empty", ErrInvalidArgument)
	}

	categories := make([]string, len(slices))
	for i, slice := range slices {
		categories[i] = slice.Label
	}

	series := make([]Series, 0, len(spotIDs))
	for _, spot := range spotIDs {
		values := make([]float64, len(slices))
		for i, slice := range slices {
			values[i] = slice.Averages[spot]
		}
		series = append(series, Series{SpotID: spot, Values: values})
	}

	return ChartData{Categories: categories, Series: series}, nil
}
