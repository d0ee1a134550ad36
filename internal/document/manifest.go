package document

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// RawManifestItem is one record of the ingestion manifest as supplied
// by the user. A single record may reference several source files; the
// remaining fields are free-form metadata inherited by every file.
type RawManifestItem struct {
	Files    []string          `json:"files"`
	Metadata map[string]string `json:"metadata"`
}

// ManifestEntry is a flattened record: exactly one source file with its
// inherited metadata. This is the unit handed to the converter.
type ManifestEntry struct {
	File     string
	Metadata map[string]string
}

// LoadManifest reads and flattens an ingestion manifest. Records
// without files are skipped with a warning rather than failing the
// batch; a manifest that parses to zero entries is not an error.
func LoadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeManifestInvalid,
			fmt.Sprintf("read manifest %s: %v", path, err), err)
	}

	var items []RawManifestItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeManifestInvalid,
			fmt.Sprintf("parse manifest %s: %v", path, err), err)
	}

	return FlattenManifest(items), nil
}

// FlattenManifest expands multi-file records into one entry per file.
// Metadata is copied per entry so later mutation cannot leak across
// entries.
func FlattenManifest(items []RawManifestItem) []ManifestEntry {
	var entries []ManifestEntry

	for i, item := range items {
		if len(item.Files) == 0 {
			slog.Warn("manifest record has no files, skipping",
				slog.Int("record", i))
			continue
		}
		for _, file := range item.Files {
			if file == "" {
				continue
			}
			meta := make(map[string]string, len(item.Metadata))
			for k, v := range item.Metadata {
				meta[k] = v
			}
			entries = append(entries, ManifestEntry{
				File:     file,
				Metadata: meta,
			})
		}
	}

	slog.Info("manifest flattened",
		slog.Int("records", len(items)),
		slog.Int("entries", len(entries)))

	return entries
}
