// Package analysis talks to the external audio-analysis service and turns
// its raw predictions into the feature record the visuals are driven by.
package analysis

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SphereRadius is the radius of the ambient field. Emotion coordinates span
// ±0.8 of it on X and Y.
const SphereRadius = 20.0

const (
	defaultBPM  = 120
	unknownText = "N/A"
	// arousal and valence are predicted on a 0..10 scale
	scaleMax = 10.0
)

// Result is the raw prediction returned by the analysis service.
type Result struct {
	BPM     float64 `json:"bpm"`
	Key     string  `json:"key"`
	Mode    string  `json:"mode"`
	RMS     float64 `json:"rms"`
	Arousal float64 `json:"arousal"`
	Valence float64 `json:"valence"`
}

// ParseResult validates a service response body. Arousal and valence must be
// present and numeric; everything else falls back to a default.
func ParseResult(body []byte) (Result, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, &Error{Msg: "invalid response from analysis service", Err: err}
	}

	arousal, ok := raw["arousal"].(float64)
	if !ok {
		return Result{}, &Error{Msg: "invalid response from analysis service: missing or non-numeric arousal"}
	}
	valence, ok := raw["valence"].(float64)
	if !ok {
		return Result{}, &Error{Msg: "invalid response from analysis service: missing or non-numeric valence"}
	}

	r := Result{Arousal: arousal, Valence: valence}
	r.BPM, _ = raw["bpm"].(float64)
	r.RMS, _ = raw["rms"].(float64)
	r.Key, _ = raw["key"].(string)
	r.Mode, _ = raw["mode"].(string)
	return r, nil
}

// FeatureRecord is the derived, immutable description of one analysed track.
type FeatureRecord struct {
	FileName   string  `json:"fileName"`
	BPM        int     `json:"bpm"`
	MusicalKey string  `json:"key"`
	Mode       string  `json:"mode"`
	RMS        float64 `json:"rms"`

	Arousal     float64 `json:"arousal"`
	Valence     float64 `json:"valence"`
	Energy      float64 `json:"energy"`
	Calmness    float64 `json:"calmness"`
	ValenceNorm float64 `json:"valenceNorm"`
	ColorHue    float64 `json:"colorHue"`

	Mood         Mood   `json:"mood"`
	ArousalLevel string `json:"arousalLevel"`
	ValenceLevel string `json:"valenceLevel"`

	TargetPosition mgl64.Vec3 `json:"targetPosition"`
}

// NewFeatureRecord maps a result onto the emotion plane. jitter in [-1, 1]
// scatters the depth coordinate so tracks with equal scores do not overlap.
func NewFeatureRecord(r Result, fileName string, jitter float64) *FeatureRecord {
	arousal := clamp(r.Arousal, 0, scaleMax)
	valence := clamp(r.Valence, 0, scaleMax)

	bpm := int(math.Round(r.BPM))
	if bpm <= 0 {
		bpm = defaultBPM
	}

	energy := arousal / scaleMax
	valenceNorm := valence / scaleMax
	span := SphereRadius * 0.8

	return &FeatureRecord{
		FileName:   fileName,
		BPM:        bpm,
		MusicalKey: orUnknown(r.Key),
		Mode:       orUnknown(r.Mode),
		RMS:        r.RMS,

		Arousal:     arousal,
		Valence:     valence,
		Energy:      energy,
		Calmness:    1 - energy,
		ValenceNorm: valenceNorm,
		ColorHue:    valenceNorm * 120,

		Mood:         MoodOf(arousal, valence),
		ArousalLevel: Level(arousal, "High", "Medium", "Low"),
		ValenceLevel: Level(valence, "Positive", "Neutral", "Negative"),

		TargetPosition: mgl64.Vec3{
			(valenceNorm*2 - 1) * span,
			(arousal/5 - 1) * span,
			clamp(jitter, -1, 1) * SphereRadius * 0.1,
		},
	}
}

// String is a one-line summary for logs.
func (f *FeatureRecord) String() string {
	return fmt.Sprintf("%s: %s, %d BPM, %s %s (arousal %.2f, valence %.2f)",
		f.FileName, f.Mood, f.BPM, f.MusicalKey, f.Mode, f.Arousal, f.Valence)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownText
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
