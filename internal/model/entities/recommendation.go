package entities

// RecommendationFlags are the three boolean suggestions of the advisor.
type RecommendationFlags struct {
	ReduceTemperature bool `json:"reduce_temperature"`
	WaterPlant        bool `json:"water_plant"`
	IncreaseAirflow   bool `json:"increase_airflow"`
}

// Recommendation is the diagnostic result of the external advisor.
type Recommendation struct {
	Disease    string              `json:"disease"`
	Plant      string              `json:"plant"`
	Confidence float64             `json:"confidence"`
	Flags      RecommendationFlags `json:"recommendation"`
}

// NeutralRecommendation is substituted whenever the advisor fails or answers garbage.
func NeutralRecommendation() Recommendation {
	return Recommendation{
		Disease:    "unknown",
		Plant:      "Unknown",
		Confidence: 0.0,
	}
}
