// Package storage keeps pulled form definitions and submissions on disk so
// exports can run offline.
//
// Layout:
//
//	<folder>/index.json
//	<folder>/<form id>/form.json
//	<folder>/<form id>/data.json
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/happyhackingspace/formflat/internal/apperr"
)

const (
	indexFile      = "index.json"
	definitionFile = "form.json"
	dataFile       = "data.json"
)

// Storage wraps the snapshot data folder.
type Storage struct {
	Folder string
	mu     sync.Mutex
}

// NewStorage creates a Storage for the given data folder.
func NewStorage(folder string) *Storage {
	return &Storage{Folder: folder}
}

// IndexEntry describes one pulled form.
type IndexEntry struct {
	FormID      string    `json:"form_id"`
	IDString    string    `json:"id_string,omitempty"`
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Server      string    `json:"server,omitempty"`
	Submissions int       `json:"submissions"`
	PulledAt    time.Time `json:"pulled_at"`
}

// GetIndex reads the index file. A missing index is empty.
func (s *Storage) GetIndex() (map[string]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.Folder, indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]IndexEntry), nil
		}
		return nil, err
	}
	var index map[string]IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse %s: %w", indexFile, err)
	}
	if index == nil {
		index = make(map[string]IndexEntry)
	}
	return index, nil
}

// Entries returns the index sorted by server and then form id.
func (s *Storage) Entries() ([]IndexEntry, error) {
	index, err := s.GetIndex()
	if err != nil {
		return nil, err
	}
	entries := make([]IndexEntry, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Server != entries[j].Server {
			return entries[i].Server < entries[j].Server
		}
		return entries[i].FormID < entries[j].FormID
	})
	return entries, nil
}

// Save writes a snapshot of a form and records it in the index.
func (s *Storage) Save(entry IndexEntry, definition, data []byte) error {
	if err := validID(entry.FormID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.Folder, entry.FormID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, definitionFile), definition, 0644); err != nil {
		return fmt.Errorf("write definition: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, dataFile), data, 0644); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	index, err := s.GetIndex()
	if err != nil {
		return err
	}
	if entry.Server == "" && entry.URL != "" {
		entry.Server = GetDomain(entry.URL)
	}
	if entry.PulledAt.IsZero() {
		entry.PulledAt = time.Now().UTC()
	}
	index[entry.FormID] = entry
	return s.saveIndex(index)
}

func (s *Storage) saveIndex(index map[string]IndexEntry) error {
	data, err := json.MarshalIndent(index, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Folder, indexFile), data, 0644)
}

// FormDefinition returns the stored definition of a form.
func (s *Storage) FormDefinition(_ context.Context, formID string) ([]byte, error) {
	return s.read(formID, definitionFile)
}

// Submissions returns the stored submissions of a form.
func (s *Storage) Submissions(_ context.Context, formID string) ([]byte, error) {
	return s.read(formID, dataFile)
}

func (s *Storage) read(formID, name string) ([]byte, error) {
	op := "read snapshot " + formID
	if err := validID(formID); err != nil {
		return nil, apperr.SourceData(op, err)
	}
	data, err := os.ReadFile(filepath.Join(s.Folder, formID, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.SourceDataf(op, "form %s has not been pulled", formID)
		}
		return nil, apperr.SourceData(op, err)
	}
	return data, nil
}

func validID(formID string) error {
	if formID == "" || formID == "." || formID == ".." || strings.ContainsAny(formID, `/\`) {
		return fmt.Errorf("invalid form id %q", formID)
	}
	return nil
}

// GetDomain extracts the registrable domain name from a URL, so
// "https://kc.humanitarianresponse.info/api/v1" yields "humanitarianresponse".
func GetDomain(rawURL string) string {
	host := rawURL
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	if idx := strings.Index(domain, "."); idx >= 0 {
		return domain[:idx]
	}
	return domain
}
