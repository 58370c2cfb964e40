package speech

// Chunk is a contiguous piece of the narration, numbered from 1.
type Chunk struct {
	Seq  int
	Text string
}

// Split cuts text into pieces of at most limit characters. Pieces are cut on
// rune boundaries and concatenate back to text exactly.
func Split(text string, limit int) []Chunk {
	if limit <= 0 {
		limit = MaxChunkLength
	}

	var chunks []Chunk
	runes := 0
	start := 0
	for i := range text {
		if runes == limit {
			chunks = append(chunks, Chunk{Seq: len(chunks) + 1, Text: text[start:i]})
			start = i
			runes = 0
		}
		runes++
	}
	if start < len(text) {
		chunks = append(chunks, Chunk{Seq: len(chunks) + 1, Text: text[start:]})
	}
	return chunks
}
