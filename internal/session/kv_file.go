package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileKV keeps the keys of one namespace in a single JSON object file. Every
// read goes to the file, so a session written by another process is seen on
// the next Load. Every write replaces the file through a rename, so readers
// see either the old or the new set of keys.
type FileKV struct {
	path string

	mu sync.RWMutex
}

// DefaultNamespace keeps its session at the configured file path.
const DefaultNamespace = "default"

// NamespaceFile returns the session file for namespace. Other namespaces get a
// sibling of path, so session.json becomes session.<namespace>.json.
func NamespaceFile(path, namespace string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" || namespace == DefaultNamespace {
		return path, nil
	}
	if strings.ContainsAny(namespace, `/\`) || strings.HasPrefix(namespace, ".") {
		return "", fmt.Errorf("session namespace %q cannot name a file", namespace)
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + namespace + ext, nil
}

func NewFileKV(path string) (*FileKV, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session file path is required")
	}

	kv := &FileKV{path: path}
	if _, err := kv.read(); err != nil {
		return nil, err
	}
	return kv, nil
}

func (f *FileKV) GetMany(keys []string) (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	values, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *FileKV) PutMany(values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := f.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		next[k] = v
	}
	return f.persist(next)
}

func (f *FileKV) DeleteMany(keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(next, k)
	}
	return f.persist(next)
}

func (f *FileKV) read() (map[string]string, error) {
	values := make(map[string]string)
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(b) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return values, nil
}

func (f *FileKV) persist(values map[string]string) error {
	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
