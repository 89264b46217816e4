package models

import (
	"math"
	"unicode/utf8"
)

// ProcessingStats summarizes one document-processing run.
type ProcessingStats struct {
	TotalChunks     int     `json:"total_chunks"`
	TotalCharacters int     `json:"total_characters"`
	AvgChunkSize    float64 `json:"avg_chunk_size"`
	ChunkSize       int     `json:"chunk_size"`
	ChunkOverlap    int     `json:"chunk_overlap"`
}

// NewProcessingStats derives stats from the chunked output. Sizes count
// characters, not bytes; the average is rounded to two decimals for stable
// display.
func NewProcessingStats(chunks []Chunk, chunkSize, chunkOverlap int) ProcessingStats {
	stats := ProcessingStats{
		TotalChunks:  len(chunks),
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
	for _, c := range chunks {
		stats.TotalCharacters += utf8.RuneCountInString(c.Content)
	}
	if stats.TotalChunks > 0 {
		avg := float64(stats.TotalCharacters) / float64(stats.TotalChunks)
		stats.AvgChunkSize = math.Round(avg*100) / 100
	}
	return stats
}
