// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cacheutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aegea/aegea/internal/log"
)

// Dir resolves the base cache directory. AEGEA_CACHE_DIR wins over
// os.UserCacheDir()/aegea. Returns ("", false) when neither resolves, which
// callers treat as caching disabled.
func Dir() (string, bool) {
	if c, ok := os.LookupEnv("AEGEA_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "aegea"), true
	}
	return "", false
}

// Enabled returns true unless AEGEA_CACHE is "0" or "false".
func Enabled() bool {
	enabled, _ := os.LookupEnv("AEGEA_CACHE")
	return enabled == "" || (enabled != "0" && enabled != "false")
}

// Store is a directory of JSON documents keyed by clear-text strings. Entries
// older than TTL are treated as misses. A zero TTL never expires.
type Store struct {
	Bucket string
	TTL    time.Duration

	now func() time.Time
}

// New returns a Store rooted at <Dir>/<bucket>.
func New(bucket string, ttl time.Duration) *Store {
	return &Store{Bucket: bucket, TTL: ttl, now: time.Now}
}

func (s *Store) path(key string) (string, bool) {
	if !Enabled() {
		return "", false
	}
	base, ok := Dir()
	if !ok {
		return "", false
	}
	return filepath.Join(base, s.Bucket, encodeKey(key)), true
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Get decodes the entry for key into v. It reports false on a miss, an
// expired entry, or an entry that no longer decodes.
func (s *Store) Get(key string, v any) bool {
	p, ok := s.path(key)
	if !ok {
		return false
	}

	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if s.TTL > 0 && s.clock().Sub(info.ModTime()) > s.TTL {
		log.Debugf("cache expired: bucket=%s key=%s", s.Bucket, key)
		return false
	}

	b, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.WithError(err).Warnf("ignoring corrupt cache entry %s", p)
		return false
	}

	log.Debugf("cache hit: bucket=%s key=%s", s.Bucket, key)
	return true
}

// Put stores v under key, creating directories as needed. A disabled cache
// silently drops the write.
func (s *Store) Put(key string, v any) error {
	p, ok := s.path(key)
	if !ok {
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(p, b, 0o600); err != nil { //nolint:mnd
		return fmt.Errorf("failed to write to cache: %w", err)
	}

	log.Debugf("cache write: bucket=%s key=%s", s.Bucket, key)
	return nil
}

// Purge removes entries in the bucket older than TTL. A zero TTL is a no-op.
func (s *Store) Purge() error {
	if s.TTL <= 0 || !Enabled() {
		return nil
	}
	base, ok := Dir()
	if !ok {
		return nil
	}

	root := filepath.Join(base, s.Bucket)
	now := s.clock()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}
		if now.Sub(info.ModTime()) > s.TTL {
			if err := os.Remove(path); err != nil {
				log.WithError(err).Warnf("failed to remove cache file %s", path)
			} else {
				log.Debugf("removed cache file %s", path)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}

func encodeKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
