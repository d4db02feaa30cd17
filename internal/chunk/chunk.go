package chunk

// Chunk is one stored piece of a content file.
//
// Order is 0-based and contiguous per FilePath; concatenating a file's chunks
// in Order reproduces the text that was split. ID is assigned by the store and
// stays fixed when embeddings are attached.
type Chunk struct {
	ID        int64     `json:"id"`
	FilePath  string    `json:"file_path"`
	Order     int       `json:"order"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// Vector is an embedding keyed by chunk id.
type Vector struct {
	ID     int64
	Values []float32
}
