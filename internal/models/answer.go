package models

// Source is one retrieved chunk cited alongside an answer. Content is
// truncated for display; Metadata identifies where it came from.
type Source struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// AnswerError is the machine-readable failure attached to an Answer.
// The answer text itself always stays user-presentable.
type AnswerError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Answer is the result of one question. Err is nil on success; on
// failure Text still holds a user-facing fallback and Sources is empty.
type Answer struct {
	Text    string       `json:"answer"`
	Sources []Source     `json:"sources"`
	Err     *AnswerError `json:"error,omitempty"`
}

// OK reports whether the answer completed without a pipeline failure.
func (a *Answer) OK() bool {
	return a != nil && a.Err == nil
}
