package entities

// Direction of a contribution relative to the predicted risk.
type Direction string

const (
	DirectionPositive Direction = "positive" // increases risk
	DirectionNegative Direction = "negative" // decreases risk
)

// ContributionChartPoint is one bar of the feature-contribution chart.
type ContributionChartPoint struct {
	Feature   string    `json:"feature"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
}

// ContributionChart is the chart payload for one selected result.
type ContributionChart struct {
	Index  int                      `json:"index"`
	Points []ContributionChartPoint `json:"points"`
	Domain [2]float64               `json:"domain"`
}
