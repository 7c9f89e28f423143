package chat

// Source describes one retrieved chunk backing an answer.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Article string  `json:"article,omitempty"`
	Chapter string  `json:"chapter,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
	// Scored is false when the retrieval strategy's ranking is not a
	// similarity score.
	Scored bool `json:"scored"`
}

// Response is a complete answer with its supporting sources. NoContext marks
// the fixed fallback answer produced without calling the model.
type Response struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	NoContext bool     `json:"no_context"`
}
