// Package store implements the flat-file JSON collection store backing
// wabot's persistent state (entitlements, per-chat toggles, telemetry,
// message history). Each collection is a JSON array of objects in its own
// file under the database directory.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	. "github.com/ahmadsysdev/wabot/internal/logging"
)

// Record is one object inside a collection.
type Record map[string]interface{}

// Str returns the string value of key, or "" if absent or not a string.
func (r Record) Str(key string) string {
	v, _ := r[key].(string)
	return v
}

// Num returns the numeric value of key. JSON numbers decode as float64.
func (r Record) Num(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns the boolean value of key, or false if absent.
func (r Record) Bool(key string) bool {
	v, _ := r[key].(bool)
	return v
}

// Store manages a directory of JSON collection files. All operations are
// read-modify-write under a single lock; there are no cross-call
// transactions.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) filepath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Add creates an empty collection if it doesn't exist yet.
func (s *Store) Add(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filepath(name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := s.write(path, []Record{}); err != nil {
		return err
	}
	L_debug("store: collection created", "name", name)
	return nil
}

// Read returns all records of a collection. A missing collection reads as
// empty.
func (s *Store) Read(name string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(s.filepath(name))
}

// Modified appends a record to a collection, creating it if needed.
func (s *Store) Modified(name string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filepath(name)
	records, err := s.read(path)
	if err != nil {
		return err
	}
	records = append(records, rec)
	return s.write(path, records)
}

// Check finds the first record whose field equals key. With an empty
// field, a record matches when it has a property named key. The second
// return is false when nothing matched.
func (s *Store) Check(name, key, field string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.read(s.filepath(name))
	if err != nil {
		return nil, false
	}
	for _, rec := range records {
		if matches(rec, key, field) {
			return rec, true
		}
	}
	return nil, false
}

// Replace swaps the first record matching (key, field) with rec. Returns
// false when no record matched.
func (s *Store) Replace(name string, rec Record, key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filepath(name)
	records, err := s.read(path)
	if err != nil {
		return false, err
	}
	for i, existing := range records {
		if matches(existing, key, field) {
			records[i] = rec
			return true, s.write(path, records)
		}
	}
	return false, nil
}

// Upsert replaces the record matching (key, field) or appends it when the
// collection has no match. Every caller of the original's
// "check ? replace : modified" dance goes through here.
func (s *Store) Upsert(name string, rec Record, key, field string) error {
	replaced, err := s.Replace(name, rec, key, field)
	if err != nil {
		return err
	}
	if replaced {
		return nil
	}
	return s.Modified(name, rec)
}

// Delete removes every record matching (key, field). Returns false when
// nothing matched.
func (s *Store) Delete(name, key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filepath(name)
	records, err := s.read(path)
	if err != nil {
		return false, err
	}
	kept := records[:0]
	removed := false
	for _, rec := range records {
		if matches(rec, key, field) {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	if !removed {
		return false, nil
	}
	return true, s.write(path, kept)
}

// Duplicate reports whether (key, field) matches more than one record.
func (s *Store) Duplicate(name, key, field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.read(s.filepath(name))
	if err != nil {
		return false
	}
	count := 0
	for _, rec := range records {
		if matches(rec, key, field) {
			count++
			if count > 1 {
				return true
			}
		}
	}
	return false
}

// Rename changes a collection's name. Fails if the target exists.
func (s *Store) Rename(name, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newPath := s.filepath(newName)
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("collection %s already exists", newName)
	}
	return os.Rename(s.filepath(name), newPath)
}

// Unlink removes a collection file entirely.
func (s *Store) Unlink(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.filepath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func matches(rec Record, key, field string) bool {
	if field == "" {
		_, ok := rec[key]
		return ok
	}
	v, ok := rec[field].(string)
	return ok && v == key
}

func (s *Store) read(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse collection %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// write persists a collection atomically via temp file + rename.
func (s *Store) write(path string, records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".wabot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
