package ollama

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/satindergrewal/harmonia/internal/analysis"
)

// Describer turns a feature record into a one-sentence mood description.
type Describer struct {
	client *Client

	mu   sync.Mutex
	last map[analysis.Mood]string // mood -> last description, to avoid repeats
}

// NewDescriber wraps client.
func NewDescriber(client *Client) *Describer {
	return &Describer{client: client, last: make(map[analysis.Mood]string)}
}

const describeSystemPrompt = `You describe how a piece of music feels.

Given measured features of a track, write ONE sentence of 8 to 25 words about its mood and energy.

Rules:
- Talk about feeling, color and motion, not about the numbers
- Never name the key, the BPM or the scores
- Never mention artists, titles or lyrics
- Each description must differ from the previous one

Output ONLY the sentence. No quotes, no preamble.

/no_think`

// Describe returns "" when the model fails or answers with something
// unusable; callers keep their static caption then.
func (d *Describer) Describe(ctx context.Context, rec *analysis.FeatureRecord) string {
	d.mu.Lock()
	prev := d.last[rec.Mood]
	d.mu.Unlock()

	prompt := fmt.Sprintf("Mood: %s\nTempo: %d BPM\nKey: %s %s\nEnergy: %s\nPositivity: %s",
		rec.Mood, rec.BPM, rec.MusicalKey, rec.Mode, rec.ArousalLevel, rec.ValenceLevel)
	if prev != "" {
		prompt += "\nPrevious description (do NOT repeat this): " + prev
	}

	out, err := d.client.Generate(ctx, describeSystemPrompt, prompt)
	if err != nil {
		log.Printf("Ollama description failed: %v", err)
		return ""
	}

	out = clean(out)
	if len(out) < 15 || len(out) > 300 || out == prev {
		log.Printf("Ollama returned unusable description: %q", out)
		return ""
	}

	d.mu.Lock()
	d.last[rec.Mood] = out
	d.mu.Unlock()

	log.Printf("LLM description [%s]: %s", rec.Mood, out)
	return out
}

// clean strips reasoning tags, quotes and preambles models tend to add.
func clean(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "</think>"); i >= 0 {
		s = strings.TrimSpace(s[i+len("</think>"):])
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	lower := strings.ToLower(s)
	for _, p := range []string{"here's a description:", "here is a description:", "description:"} {
		if strings.HasPrefix(lower, p) {
			s = s[len(p):]
			break
		}
	}
	return strings.TrimSpace(s)
}
