package fusion

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/nn"
)

const (
	NoActivityStory      = "No meaningful activity was detected to generate a story."
	NarrativeFailedStory = "A detailed narrative could not be generated."
)

// Joined captions shorter than this are used as the story without summarizing
const MinSummarizeChars = 60

// DefaultMaxSummaryInput is the longest text (in characters) that we send to the summarizer
const DefaultMaxSummaryInput = 1019

// Captions that contain any of these substrings are known false positives of the captioning model
var CaptionBlocklist = []string{"video game", "cover", "dark skies", "book"}

// Narrator turns a sequence of frame captions into a story
type Narrator struct {
	log           logs.Log
	summarizer    nn.Summarizer
	MaxInputChars int
	MinLength     int
	MaxLength     int
}

func NewNarrator(log logs.Log, summarizer nn.Summarizer) *Narrator {
	return &Narrator{
		log:           log,
		summarizer:    summarizer,
		MaxInputChars: DefaultMaxSummaryInput,
		MinLength:     nn.DefaultSummaryMinLength,
		MaxLength:     nn.DefaultSummaryMaxLength,
	}
}

// FilterCaptions removes duplicates, blocklisted captions, and empty captions.
// The first occurrence of each caption keeps its position.
func FilterCaptions(captions []string) []string {
	seen := map[string]bool{}
	keep := []string{}
	for _, c := range captions {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if isBlocked(c) {
			continue
		}
		keep = append(keep, c)
	}
	return keep
}

func isBlocked(caption string) bool {
	lower := strings.ToLower(caption)
	for _, b := range CaptionBlocklist {
		if strings.Contains(lower, b) {
			return true
		}
	}
	return false
}

// Story builds the narrative text for a video.
// meaningful is false when no caption survived filtering, in which case story is NoActivityStory.
// Summarizer failure is never returned. It degrades to NarrativeFailedStory.
func (n *Narrator) Story(ctx context.Context, captions []string) (story string, meaningful bool) {
	keep := FilterCaptions(captions)
	if len(keep) == 0 {
		return NoActivityStory, false
	}
	joined := strings.Join(keep, " ")
	if utf8.RuneCountInString(joined) < MinSummarizeChars {
		return joined, true
	}
	input := truncateChars(joined, n.MaxInputChars)
	summary, err := n.summarizer.Summarize(ctx, input, n.MaxLength, n.MinLength)
	if err != nil {
		n.log.Warnf("Summarization of %v captions failed: %v", len(keep), err)
		return NarrativeFailedStory, true
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		n.log.Warnf("Summarizer returned an empty summary")
		return NarrativeFailedStory, true
	}
	return summary, true
}

// truncateChars cuts s to at most max runes
func truncateChars(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
