package analysis

import "math/rand/v2"

// Mood is one of four quadrants of the arousal/valence plane.
type Mood string

const (
	MoodHappy      Mood = "Happy/Excited"
	MoodTense      Mood = "Energetic/Tense"
	MoodSerene     Mood = "Relaxed/Serene"
	MoodMelancholy Mood = "Calm/Sad"
)

// Moods lists every quadrant.
var Moods = []Mood{MoodHappy, MoodTense, MoodSerene, MoodMelancholy}

// MoodOf picks the quadrant; 5 is the midpoint of both scales.
func MoodOf(arousal, valence float64) Mood {
	switch {
	case arousal >= 5 && valence >= 5:
		return MoodHappy
	case arousal >= 5:
		return MoodTense
	case valence >= 5:
		return MoodSerene
	default:
		return MoodMelancholy
	}
}

// Level buckets a 0..10 score into three bands.
func Level(v float64, high, mid, low string) string {
	switch {
	case v >= 7:
		return high
	case v >= 4:
		return mid
	default:
		return low
	}
}

// captions are shown when no language model is configured.
var captions = map[Mood][]string{
	MoodHappy: {
		"Bright and buoyant, this track carries a lifted, celebratory pulse.",
		"Sunlit energy with an open, smiling lean.",
		"Upbeat and warm, built to move a room.",
	},
	MoodTense: {
		"Driving and restless, the energy runs high with an edge.",
		"Charged and urgent, all forward motion and tight corners.",
		"Intense and dark-tinted, a pulse that refuses to settle.",
	},
	MoodSerene: {
		"Gentle and content, it drifts along an easy, warm current.",
		"Soft focus and unhurried, the calm of a clear afternoon.",
		"Airy and settled, a quiet kind of happiness.",
	},
	MoodMelancholy: {
		"Slow and inward, colored by a soft, wistful gray.",
		"Low light and long shadows, reflective and hushed.",
		"Subdued and tender, a track that sits with its feelings.",
	},
}

// Caption returns a canned description for the mood.
func Caption(m Mood) string {
	options, ok := captions[m]
	if !ok || len(options) == 0 {
		return ""
	}
	return options[rand.IntN(len(options))]
}
