package domain

// SearchResult is a single nearest-neighbour hit from a vector index.
type SearchResult struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Distance is the cosine distance (1 - cosine similarity); lower is closer.
	Distance float64

	// Text is the chunk content.
	Text string

	// Metadata locates the chunk in its source document.
	Metadata ChunkMetadata

	// DocumentKey is the document the chunk belongs to.
	DocumentKey DocumentKey
}

// RetrievalStatus records which retrieval path a chat request took.
type RetrievalStatus string

// Retrieval statuses.
const (
	RetrievalOK       RetrievalStatus = "ok"
	RetrievalEmpty    RetrievalStatus = "empty"
	RetrievalDisabled RetrievalStatus = "disabled"
	RetrievalFailed   RetrievalStatus = "failed"
	RetrievalTimeout  RetrievalStatus = "timeout"
)

// Degraded reports whether retrieval was attempted and did not complete.
func (s RetrievalStatus) Degraded() bool {
	return s == RetrievalFailed || s == RetrievalTimeout
}
