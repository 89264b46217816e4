package models

import "encoding/json"

// Chunk is one retrievable unit of a processed document set.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries the source page fields plus chunk position.
// ChunkID is zero-based and always less than ChunkCount; every chunk
// split from the same text shares the same ChunkCount and TotalLength.
type ChunkMetadata struct {
	PageMetadata
	ChunkID             int `json:"chunk_id"`
	ChunkCount          int `json:"chunk_count"`
	ChunkSizeSetting    int `json:"chunk_size_setting"`
	ChunkOverlapSetting int `json:"chunk_overlap_setting"`
	TotalLength         int `json:"total_length"`
}

// ToMap converts typed metadata to map for storage
func (m *ChunkMetadata) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
