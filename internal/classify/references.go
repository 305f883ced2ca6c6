// SPDX-License-Identifier: MIT

package classify

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/khaas/earshot/internal/log"
)

var refMIMEs = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".wav":  "audio/wav",
}

// LoadReferences reads labelled reference artifacts from
// dir/<label>/* for each configured label. Unsupported or unreadable
// files are skipped with a log line; a missing directory just yields no
// references.
func LoadReferences(dir string, labels []string) []Example {
	logger := log.WithComponent("classify")
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		logger.Debug().Str(log.FieldPath, dir).Msg("reference directory absent")
		return nil
	}

	var refs []Example
	for _, label := range labels {
		labelDir := filepath.Join(dir, label)
		entries, err := os.ReadDir(labelDir)
		if err != nil {
			continue
		}
		loaded := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			mime, ok := refMIMEs[strings.ToLower(filepath.Ext(entry.Name()))]
			if !ok {
				logger.Debug().Str(log.FieldPath, entry.Name()).Msg("skipping unsupported reference format")
				continue
			}
			data, err := os.ReadFile(filepath.Join(labelDir, entry.Name()))
			if err != nil {
				logger.Warn().Err(err).Str(log.FieldPath, entry.Name()).Msg("reference read failed")
				continue
			}
			refs = append(refs, Example{
				Label: label,
				MIME:  mime,
				Data:  base64.StdEncoding.EncodeToString(data),
			})
			loaded++
		}
		if loaded > 0 {
			logger.Info().Str("label", label).Int("count", loaded).Msg("reference examples loaded")
		}
	}
	return refs
}
