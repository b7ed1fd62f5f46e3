package advisor

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
)

// Input is what the advisor is told about the plant.
type Input struct {
	Temperature float64
	Humidity    float64
	Light       string
	SoilSummary string
	Image       []byte
}

var promptTemplate = template.Must(template.New("prompt").Parse(`
You are an agricultural AI in an IoT system.

Sensor Data:
- Temperature: {{.Temp}} °C
- Humidity: {{.Humidity}} %
- Light: {{.Light}}
- Soil Moisture: {{.Soil}}

Rules:
- Soil moisture is reported as "X/Total DRY" or "X/Total WET"
  (e.g. "3/5 DRY" means 3 out of 5 sensors read DRY, majority is DRY)
- Light is digital (DARK/BRIGHT)
- Recommend watering ONLY if the majority soil reading is DRY
- Recommend airflow if disease detected OR temperature > 30
- Reduce temperature ONLY if temperature > 30
- When no disease is found, set 'disease' to 'No disease found' and all flags to false
- When no plant is detected, set 'plant' to 'No plant detected'

Return ONLY valid JSON:

{
  "disease": "string",
  "plant": "string",
  "confidence": 0.0,
  "recommendation": {
    "reduce_temperature": false,
    "water_plant": false,
    "increase_airflow": false
  }
}
`))

// RenderPrompt embeds the sensor values into the advisor instructions.
func RenderPrompt(in Input) string {
	var b bytes.Buffer
	_ = promptTemplate.Execute(&b, map[string]string{
		"Temp":     formatFloat(in.Temperature),
		"Humidity": formatFloat(in.Humidity),
		"Light":    in.Light,
		"Soil":     in.SoilSummary,
	})
	return b.String()
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// responseTrace renders the raw answer as a fenced markdown block.
func responseTrace(text string) string {
	return "```json\n" + strings.TrimSpace(text) + "\n```"
}

func errorTrace(err error) string {
	return "```\nError: " + err.Error() + "\n```"
}
