package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// Source maps a tenant id to its raw profile document.
type Source interface {
	Load(tenantID string) (map[string]any, error)
	List() ([]string, error)
}

var profileExtensions = []string{".json", ".yaml", ".yml"}

// FileStore reads <dir>/<tenant>.json, .yaml or .yml.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Load returns the tenant's raw document or a *NotFoundError.
func (s *FileStore) Load(tenantID string) (map[string]any, error) {
	if !validTenantID(tenantID) {
		return nil, &NotFoundError{TenantID: tenantID}
	}

	for _, ext := range profileExtensions {
		path := filepath.Join(s.dir, tenantID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		doc := map[string]any{}
		if ext == ".json" {
			err = sonic.Unmarshal(data, &doc)
		} else {
			err = yaml.Unmarshal(data, &doc)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	}
	return nil, &NotFoundError{TenantID: tenantID}
}

// List returns the ids of every profile in the directory, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, known := range profileExtensions {
			if ext != known {
				continue
			}
			id := strings.TrimSuffix(e.Name(), ext)
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// StaticSource serves documents from memory.
type StaticSource map[string]map[string]any

func (s StaticSource) Load(tenantID string) (map[string]any, error) {
	doc, ok := s[tenantID]
	if !ok {
		return nil, &NotFoundError{TenantID: tenantID}
	}
	return doc, nil
}

func (s StaticSource) List() ([]string, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func validTenantID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
