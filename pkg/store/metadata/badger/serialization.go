package badger

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/dittofiles/pkg/files"
)

// encodeRecord serializes a record for storage under prefixFile.
func encodeRecord(rec *files.FileRecord) ([]byte, error) {
	bytes, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return bytes, nil
}

// decodeRecord deserializes a record stored under prefixFile.
func decodeRecord(bytes []byte) (*files.FileRecord, error) {
	var rec files.FileRecord
	if err := json.Unmarshal(bytes, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return &rec, nil
}
