package analysis

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewFeatureRecordMapping(t *testing.T) {
	r := Result{BPM: 127.6, Key: "A", Mode: "minor", RMS: 0.2, Arousal: 8, Valence: 2}
	f := NewFeatureRecord(r, "song.mp3", 0.5)

	if !approx(f.Energy, 0.8) || !approx(f.Calmness, 0.2) {
		t.Errorf("energy/calmness = %v/%v", f.Energy, f.Calmness)
	}
	if !approx(f.ColorHue, 24) {
		t.Errorf("hue = %v, want 24", f.ColorHue)
	}
	p := f.TargetPosition
	if !approx(p.X(), -9.6) || !approx(p.Y(), 9.6) || !approx(p.Z(), 1) {
		t.Errorf("target = %v, want (-9.6, 9.6, 1)", p)
	}
	if f.BPM != 128 {
		t.Errorf("bpm = %d, want 128", f.BPM)
	}
	if f.Mood != MoodTense {
		t.Errorf("mood = %q", f.Mood)
	}
	if f.ArousalLevel != "High" || f.ValenceLevel != "Negative" {
		t.Errorf("levels = %s/%s", f.ArousalLevel, f.ValenceLevel)
	}
}

func TestNewFeatureRecordDefaults(t *testing.T) {
	f := NewFeatureRecord(Result{Arousal: 5, Valence: 5}, "x.mp3", 3)
	if f.BPM != 120 {
		t.Errorf("bpm default = %d", f.BPM)
	}
	if f.MusicalKey != "N/A" || f.Mode != "N/A" {
		t.Errorf("key/mode = %q/%q", f.MusicalKey, f.Mode)
	}
	if !approx(f.TargetPosition.Z(), 2) {
		t.Errorf("jitter not clamped: z = %v", f.TargetPosition.Z())
	}
	if !approx(f.TargetPosition.X(), 0) || !approx(f.TargetPosition.Y(), 0) {
		t.Errorf("midpoint target = %v", f.TargetPosition)
	}
}

func TestMoodOf(t *testing.T) {
	tests := []struct {
		arousal, valence float64
		want             Mood
	}{
		{5, 5, MoodHappy},
		{9, 9, MoodHappy},
		{5, 4.9, MoodTense},
		{4.9, 5, MoodSerene},
		{1, 1, MoodMelancholy},
	}
	for _, tt := range tests {
		if got := MoodOf(tt.arousal, tt.valence); got != tt.want {
			t.Errorf("MoodOf(%v, %v) = %q, want %q", tt.arousal, tt.valence, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{7, "hi"}, {6.99, "mid"}, {4, "mid"}, {3.99, "lo"}, {0, "lo"},
	}
	for _, tt := range tests {
		if got := Level(tt.v, "hi", "mid", "lo"); got != tt.want {
			t.Errorf("Level(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestCaptionCoversEveryMood(t *testing.T) {
	for _, m := range Moods {
		if Caption(m) == "" {
			t.Errorf("no caption for %q", m)
		}
	}
	if Caption("Unknown") != "" {
		t.Error("unknown mood should have no caption")
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"full", `{"bpm":120.4,"key":"C","mode":"major","rms":0.1,"arousal":6.5,"valence":3}`, false},
		{"only emotion", `{"arousal":1,"valence":2}`, false},
		{"missing arousal", `{"bpm":120,"valence":3}`, true},
		{"string valence", `{"arousal":3,"valence":"3"}`, true},
		{"null arousal", `{"arousal":null,"valence":3}`, true},
		{"not json", `<html>`, true},
		{"array", `[1,2]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseResult([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrAnalysis) {
					t.Fatalf("err = %v, want ErrAnalysis", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Arousal == 0 {
				t.Error("arousal not parsed")
			}
		})
	}
}

func TestParseResultIgnoresBadOptionalFields(t *testing.T) {
	r, err := ParseResult([]byte(`{"arousal":2,"valence":8,"bpm":"fast","key":7}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.BPM != 0 || r.Key != "" {
		t.Errorf("bad optional fields leaked: %+v", r)
	}
	f := NewFeatureRecord(r, "", 0)
	if f.BPM != 120 || f.MusicalKey != "N/A" {
		t.Errorf("defaults not applied: %+v", f)
	}
}
