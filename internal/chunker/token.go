package chunker

import (
	"strings"
	"time"
)

// WordsPerMinute is a typical narration pace for synthesized speech.
const WordsPerMinute = 150

// EstimateSpeech gives a rough narration length for text at WordsPerMinute.
// It is only used for progress reporting, never for sizing chunks.
func EstimateSpeech(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / WordsPerMinute * float64(time.Minute))
}

// EstimateChunks sums EstimateSpeech over chunks.
func EstimateChunks(chunks []Chunk) time.Duration {
	var total time.Duration
	for _, c := range chunks {
		total += EstimateSpeech(c.Content)
	}
	return total
}
