package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/moby/locker"
	"github.com/opencontainers/go-digest"

	"github.com/emberworks/kilnd/internal/manifest"
	"github.com/emberworks/kilnd/internal/paths"
)

// Filename of the metadata record inside an entry directory.
const entryFilename = "entry.json"

// A persisted dependency cache entry.
//
// Entries are created once and never mutated. Invalidation happens only by
// key change: a new fingerprint or build configuration addresses a different
// entry, and the old one remains for builds that still match it.
type Entry struct {
	Key         digest.Digest     `json:"key"`         // Full cache key (fingerprint + build configuration).
	Fingerprint digest.Digest     `json:"fingerprint"` // Plan fingerprint of the dependency closure.
	Artifacts   map[string]string `json:"artifacts"`   // Artifact paths relative to the entry directory, by name.
	CreatedAt   time.Time         `json:"created_at"`  // When the entry was populated.

	dir string // Absolute entry directory, set on load.
}

// Returns the absolute entry directory.
func (e *Entry) Dir() string {
	return e.dir
}

// Returns the absolute path of a named artifact inside the entry.
func (e *Entry) ArtifactPath(name string) (string, bool) {
	rel, ok := e.Artifacts[name]
	if !ok {
		return "", false
	}
	return filepath.Join(e.dir, rel), true
}

// A content-addressed store of dependency cache entries, shared across
// pipeline invocations.
//
// Reads are lock-free. Writes are coordinated per key: an in-process key
// lock serializes concurrent builders, and the populated entry is renamed
// into place atomically so a concurrent daemon never observes a partial
// entry. Losing a cross-process race is not an error; the winner's entry
// is loaded and reused.
type Store struct {
	root  string         // Root directory of the store.
	locks *locker.Locker // Per-key locks for populate coordination.
}

// Creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		root:  dir,
		locks: locker.New(),
	}
}

// Computes the cache key for a plan fingerprint under a build configuration.
//
// The key extends the fingerprint with the profile, sorted feature set, and
// extra compiler flags, because dependency artifacts compiled under one
// configuration cannot be reused under another.
func Key(fingerprint digest.Digest, cfg manifest.BuildConfig) digest.Digest {
	features := slices.Clone(cfg.Features)
	slices.Sort(features)

	var b strings.Builder
	b.WriteString(fingerprint.String())
	b.WriteByte(0)
	b.WriteString(cfg.Profile)
	b.WriteByte(0)
	b.WriteString(strings.Join(features, ","))
	b.WriteByte(0)
	b.WriteString(cfg.Flags)

	return digest.FromString(b.String())
}

// Looks up an entry by key.
//
// Returns false when no entry exists for the key. A directory without a
// readable metadata record is treated as corrupt and reported as an error
// rather than silently rebuilt over.
func (s *Store) Get(key digest.Digest) (*Entry, bool, error) {
	dir := s.entryDir(key)

	data, err := os.ReadFile(filepath.Join(dir, entryFilename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %w", ErrStore, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("%w: corrupt entry %s: %w", ErrStore, key, err)
	}

	entry.dir = dir
	return &entry, true, nil
}

// Populates the entry for a key, building it only if no entry exists.
//
// The build function receives a private directory to write artifacts into
// and returns artifact paths relative to it. At most one builder runs for a
// given key at a time: concurrent callers block on the key lock and then
// find the winner's entry. The directory is committed with an atomic rename,
// so cancellation or failure mid-build leaves no partial entry behind.
func (s *Store) Populate(ctx context.Context, key, fingerprint digest.Digest, build func(dir string) (map[string]string, error)) (*Entry, error) {
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	// Another invocation may have populated the entry while this one was
	// waiting on the key lock.
	if entry, ok, err := s.Get(key); err != nil {
		return nil, err
	} else if ok {
		slog.Debug("cache entry populated concurrently, reusing", "key", key)
		return entry, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.root, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	tmp, err := os.MkdirTemp(s.root, "populate-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer os.RemoveAll(tmp)

	artifacts, err := build(tmp)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Key:         key,
		Fingerprint: fingerprint,
		Artifacts:   artifacts,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.commit(key, tmp, entry); err != nil {
		return nil, err
	}

	slog.Info("dependency cache populated", "key", key, "artifacts", len(artifacts))
	return entry, nil
}

// Writes the metadata record and renames the populated directory into place.
//
// A rename that fails because the target appeared concurrently (another
// process won the race) falls back to loading the winner's entry.
func (s *Store) commit(key digest.Digest, tmp string, entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if err := os.WriteFile(filepath.Join(tmp, entryFilename), data, paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	dir := s.entryDir(key)
	if err := os.MkdirAll(filepath.Dir(dir), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		if existing, ok, getErr := s.Get(key); getErr == nil && ok {
			slog.Debug("lost populate race to another process", "key", key)
			*entry = *existing
			entry.dir = existing.dir
			return nil
		}
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	entry.dir = dir
	return nil
}

// Returns the directory for a key, e.g. <root>/sha256/<hex>.
func (s *Store) entryDir(key digest.Digest) string {
	return filepath.Join(s.root, string(key.Algorithm()), key.Encoded())
}
