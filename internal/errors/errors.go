package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrorCollector gathers the failures of a multi-template compile run so
// every broken template is reported instead of only the first.
type ErrorCollector struct {
	errors []error
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{errors: make([]error, 0)}
}

// Add records err; nil is ignored.
func (ec *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// Errors returns a copy of the collected errors
func (ec *ErrorCollector) Errors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]error, len(ec.errors))
	copy(result, ec.errors)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// ByFile groups located errors by file path. Errors without a location are
// grouped under the empty string.
func (ec *ErrorCollector) ByFile() map[string][]error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	grouped := make(map[string][]error)
	for _, err := range ec.errors {
		var ve *VoltError
		file := ""
		if errors.As(err, &ve) {
			file = ve.FilePath
		}
		grouped[file] = append(grouped[file], err)
	}
	return grouped
}

// Err joins every collected error into one, or returns nil.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	switch len(ec.errors) {
	case 0:
		return nil
	case 1:
		return ec.errors[0]
	}
	return errors.Join(ec.errors...)
}

// Summary renders one line per error, sorted for stable output.
func (ec *ErrorCollector) Summary() string {
	errs := ec.Errors()
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	sort.Strings(lines)
	return fmt.Sprintf("%d error(s):\n  %s", len(lines), strings.Join(lines, "\n  "))
}
