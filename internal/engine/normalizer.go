// Package engine contains the ingestion and synchronization core: the
// content normalizer, bulk importer, sync coordinator, reconciler, stats
// aggregator and suggestion service.
package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/xmem/internal/embedding"
	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// reservedFields are import record keys that map to Memory attributes
// rather than metadata.
var reservedFields = map[string]bool{
	"content":    true,
	"type":       true,
	"project_id": true,
}

// Normalize turns a raw import record into a canonical memory draft. Pure:
// no I/O, no clock beyond the creation timestamp. Content is required and
// non-empty after trimming; type defaults to text and unrecognized values
// fail; every other field is kept as metadata.
func Normalize(record map[string]interface{}, ownerID string) (*types.Memory, error) {
	if ownerID == "" {
		return nil, storage.NewValidationError("ownerId", "must not be empty")
	}

	rawContent, _ := record["content"].(string)
	content := strings.TrimSpace(rawContent)
	if content == "" {
		return nil, storage.NewValidationError("content", "empty content")
	}

	memType := types.MemoryTypeText
	if raw, ok := record["type"]; ok {
		s, isString := raw.(string)
		if !isString {
			return nil, storage.NewValidationError("type", "must be a string")
		}
		if s = strings.TrimSpace(s); s != "" {
			memType = types.MemoryType(s)
			if !types.IsValidMemoryType(memType) {
				return nil, storage.NewValidationError("type", fmt.Sprintf("unknown type %q", s))
			}
		}
	}

	projectID, _ := record["project_id"].(string)

	var metadata map[string]interface{}
	for k, v := range record {
		if reservedFields[k] {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]interface{})
		}
		metadata[k] = v
	}

	now := time.Now().UTC()
	return &types.Memory{
		ID:          "mem:" + uuid.New().String(),
		Content:     content,
		Type:        memType,
		UserID:      ownerID,
		ProjectID:   projectID,
		Metadata:    metadata,
		SyncStatus:  types.SyncPending,
		ContentHash: embedding.Hash(content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ParseCSV reads a CSV import file into raw records suitable for
// ImportBatch. The header row names the columns; "content" is required,
// "type" maps to the memory type, "tags" splits on commas, and the known
// metadata columns (title, category, description, source, author, date)
// plus any unknown columns are kept as metadata. Blank cells are dropped.
func ParseCSV(r io.Reader) ([]map[string]interface{}, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, storage.NewValidationError("csv", "file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("import: failed to read csv header: %w", err)
	}

	columns := make([]string, len(header))
	hasContent := false
	for i, name := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(name))
		if columns[i] == "content" {
			hasContent = true
		}
	}
	if !hasContent {
		return nil, storage.NewValidationError("csv", "missing required content column")
	}

	var records []map[string]interface{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("import: failed to read csv row %d: %w", len(records)+1, err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, cell := range row {
			if i >= len(columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			switch columns[i] {
			case "tags":
				var tags []string
				for _, tag := range strings.Split(cell, ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						tags = append(tags, tag)
					}
				}
				if len(tags) > 0 {
					record["tags"] = tags
				}
			default:
				record[columns[i]] = cell
			}
		}
		records = append(records, record)
	}
	return records, nil
}
