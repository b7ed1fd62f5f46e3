package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/smartplant/plantcare/internal/model/entities"
)

type wireFlags struct {
	ReduceTemperature *bool `json:"reduce_temperature"`
	WaterPlant        *bool `json:"water_plant"`
	IncreaseAirflow   *bool `json:"increase_airflow"`
}

type wireRecommendation struct {
	Disease        *string    `json:"disease"`
	Plant          *string    `json:"plant"`
	Confidence     *float64   `json:"confidence"`
	Recommendation *wireFlags `json:"recommendation"`
}

// Parse validates the advisor answer against the recommendation schema.
// Code fences around the JSON are tolerated; anything else wraps ErrInvalidRecommendation.
func Parse(text string) (entities.Recommendation, error) {
	data := cleanJSON([]byte(text))
	if len(data) == 0 {
		return entities.Recommendation{}, fmt.Errorf("%w: empty answer", ErrInvalidRecommendation)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireRecommendation
	if err := dec.Decode(&w); err != nil {
		return entities.Recommendation{}, fmt.Errorf("%w: %v", ErrInvalidRecommendation, err)
	}
	if dec.More() {
		return entities.Recommendation{}, fmt.Errorf("%w: trailing data after object", ErrInvalidRecommendation)
	}

	switch {
	case w.Disease == nil:
		return invalid("disease")
	case w.Plant == nil:
		return invalid("plant")
	case w.Confidence == nil:
		return invalid("confidence")
	case w.Recommendation == nil:
		return invalid("recommendation")
	case w.Recommendation.ReduceTemperature == nil:
		return invalid("recommendation.reduce_temperature")
	case w.Recommendation.WaterPlant == nil:
		return invalid("recommendation.water_plant")
	case w.Recommendation.IncreaseAirflow == nil:
		return invalid("recommendation.increase_airflow")
	}
	if c := *w.Confidence; c < 0 || c > 1 {
		return entities.Recommendation{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidRecommendation, c)
	}

	return entities.Recommendation{
		Disease:    *w.Disease,
		Plant:      *w.Plant,
		Confidence: *w.Confidence,
		Flags: entities.RecommendationFlags{
			ReduceTemperature: *w.Recommendation.ReduceTemperature,
			WaterPlant:        *w.Recommendation.WaterPlant,
			IncreaseAirflow:   *w.Recommendation.IncreaseAirflow,
		},
	}, nil
}

func invalid(field string) (entities.Recommendation, error) {
	return entities.Recommendation{}, fmt.Errorf("%w: missing %s", ErrInvalidRecommendation, field)
}

// cleanJSON strips a markdown code fence (``` or ```json) around the payload.
func cleanJSON(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if len(s) == 0 {
		return s
	}

	if bytes.HasPrefix(s, []byte("```")) {
		// opening fence line
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = bytes.TrimLeft(s[3:], "json")
		}
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}

	return s
}
