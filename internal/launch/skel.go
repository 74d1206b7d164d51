// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aegea/aegea/internal/log"
)

// SkelFiles walks each rootfs skeleton directory and returns one cloud-config
// write_files entry per regular file. A file at dir/etc/motd lands at
// /etc/motd with its mode preserved. Later directories win on conflicts.
func SkelFiles(dirs []string) ([]map[string]any, error) {
	byPath := map[string]map[string]any{}
	var order []string

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			content, err := gzipBase64(b)
			if err != nil {
				return err
			}

			target := "/" + filepath.ToSlash(rel)
			if _, ok := byPath[target]; !ok {
				order = append(order, target)
			}
			byPath[target] = map[string]any{
				"path":        target,
				"permissions": fmt.Sprintf("0%o", info.Mode().Perm()),
				"encoding":    "gz+b64",
				"content":     content,
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read rootfs skeleton %s: %w", dir, err)
		}
	}

	files := make([]map[string]any, 0, len(order))
	for _, p := range order {
		files = append(files, byPath[p])
	}
	log.Debugf("rootfs skeleton files: count=%d dirs=%v", len(files), dirs)
	return files, nil
}

// withWriteFiles appends files to any write_files already in cfg.
func withWriteFiles(cfg map[string]any, files []map[string]any) map[string]any {
	var merged []any
	if existing, ok := cfg["write_files"].([]any); ok {
		merged = append(merged, existing...)
	}
	for _, f := range files {
		merged = append(merged, f)
	}
	cfg["write_files"] = merged
	return cfg
}
