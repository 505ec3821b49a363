package compiler

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/volt/internal/errors"
)

// Source is one loaded template file.
type Source struct {
	// Path is the canonical slash-separated name relative to the loader root.
	Path    string
	Text    string
	ModTime time.Time
}

// Loader resolves template names and reads their text. Paths passed to Load
// and ModTime are always results of Resolve.
type Loader interface {
	Resolve(name string) (string, error)
	Load(path string) (*Source, error)
	ModTime(path string) (time.Time, error)
}

// cleanName canonicalizes name and rejects anything that climbs above the
// root.
func cleanName(name, extension string) (string, error) {
	slashed := filepath.ToSlash(strings.TrimSpace(name))
	clean := path.Clean("/" + slashed)[1:]
	if clean == "" || strings.Contains(slashed, "\x00") {
		return "", errors.NewIOError(errors.ErrCodeTemplateNotFound,
			fmt.Sprintf("invalid template name %q", name), nil)
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", errors.NewIOError(errors.ErrCodePathTraversal,
				fmt.Sprintf("template name %q escapes the template root", name), nil)
		}
	}
	if extension != "" && !strings.HasSuffix(clean, extension) {
		clean += extension
	}
	return clean, nil
}

// FileLoader reads templates below Root. Names without Extension get it
// appended.
type FileLoader struct {
	Root      string
	Extension string
}

// NewFileLoader creates a loader rooted at root.
func NewFileLoader(root, extension string) *FileLoader {
	return &FileLoader{Root: root, Extension: extension}
}

// Resolve implements Loader. Absolute names inside Root are accepted and
// made relative.
func (l *FileLoader) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		root, err := filepath.Abs(l.Root)
		if err != nil {
			return "", errors.NewIOError(errors.ErrCodeReadFailed, "cannot resolve template root", err)
		}
		rel, err := filepath.Rel(root, name)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", errors.NewIOError(errors.ErrCodePathTraversal,
				fmt.Sprintf("template %q is outside %s", name, l.Root), err)
		}
		name = rel
	}
	return cleanName(name, l.Extension)
}

// File returns the filesystem path of a resolved name.
func (l *FileLoader) File(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// Load implements Loader.
func (l *FileLoader) Load(rel string) (*Source, error) {
	file := l.File(rel)
	info, err := os.Stat(file)
	if err != nil {
		return nil, statError(rel, err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed,
			fmt.Sprintf("cannot read template %q", rel), err)
	}
	return &Source{Path: rel, Text: string(data), ModTime: info.ModTime()}, nil
}

// ModTime implements Loader.
func (l *FileLoader) ModTime(rel string) (time.Time, error) {
	info, err := os.Stat(l.File(rel))
	if err != nil {
		return time.Time{}, statError(rel, err)
	}
	return info.ModTime(), nil
}

// List returns every template name below Root, sorted.
func (l *FileLoader) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.Root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if l.Extension != "" && !strings.HasSuffix(p, l.Extension) {
			return nil
		}
		rel, err := filepath.Rel(l.Root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed,
			fmt.Sprintf("cannot list templates in %s", l.Root), err)
	}
	sort.Strings(names)
	return names, nil
}

func statError(rel string, err error) error {
	if os.IsNotExist(err) {
		return errors.NewIOError(errors.ErrCodeTemplateNotFound,
			fmt.Sprintf("template %q not found", rel), err)
	}
	return errors.NewIOError(errors.ErrCodeReadFailed,
		fmt.Sprintf("cannot stat template %q", rel), err)
}

// MapLoader serves templates from memory. It is safe for concurrent use.
type MapLoader struct {
	mu        sync.RWMutex
	files     map[string]mapFile
	extension string
}

type mapFile struct {
	text    string
	modTime time.Time
}

// NewMapLoader creates a loader over files, stamped with the current time.
func NewMapLoader(extension string, files map[string]string) *MapLoader {
	l := &MapLoader{files: make(map[string]mapFile), extension: extension}
	now := time.Now()
	for name, text := range files {
		l.Set(name, text, now)
	}
	return l
}

// Set adds or replaces a template.
func (l *MapLoader) Set(name, text string, modTime time.Time) {
	rel, err := cleanName(name, l.extension)
	if err != nil {
		return
	}
	l.mu.Lock()
	l.files[rel] = mapFile{text: text, modTime: modTime}
	l.mu.Unlock()
}

// Remove deletes a template.
func (l *MapLoader) Remove(name string) {
	rel, err := cleanName(name, l.extension)
	if err != nil {
		return
	}
	l.mu.Lock()
	delete(l.files, rel)
	l.mu.Unlock()
}

// Resolve implements Loader.
func (l *MapLoader) Resolve(name string) (string, error) {
	return cleanName(name, l.extension)
}

// Load implements Loader.
func (l *MapLoader) Load(rel string) (*Source, error) {
	l.mu.RLock()
	f, ok := l.files[rel]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.NewIOError(errors.ErrCodeTemplateNotFound,
			fmt.Sprintf("template %q not found", rel), os.ErrNotExist)
	}
	return &Source{Path: rel, Text: f.text, ModTime: f.modTime}, nil
}

// ModTime implements Loader.
func (l *MapLoader) ModTime(rel string) (time.Time, error) {
	l.mu.RLock()
	f, ok := l.files[rel]
	l.mu.RUnlock()
	if !ok {
		return time.Time{}, errors.NewIOError(errors.ErrCodeTemplateNotFound,
			fmt.Sprintf("template %q not found", rel), os.ErrNotExist)
	}
	return f.modTime, nil
}
