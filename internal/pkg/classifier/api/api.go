package api

// Result is one ranked classification entry.
// Score is a probability, classifiers return the list ordered by descending score.
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassifyInput keeps structure for classify method
type ClassifyInput struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}
