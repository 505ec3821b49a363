package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeSyntax covers malformed template source: unterminated
	// delimiters, unknown directives and unbalanced constructs.
	ErrorTypeSyntax ErrorType = "syntax"
	// ErrorTypeSemantic covers source that parses but cannot be compiled.
	ErrorTypeSemantic      ErrorType = "semantic"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeRuntimeFilter ErrorType = "runtime_filter"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeInternal      ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeUnterminated        = "ERR_UNTERMINATED"
	ErrCodeUnknownDirective    = "ERR_UNKNOWN_DIRECTIVE"
	ErrCodeUnbalanced          = "ERR_UNBALANCED"
	ErrCodeMalformedExpression = "ERR_MALFORMED_EXPRESSION"
	ErrCodeMalformedDirective  = "ERR_MALFORMED_DIRECTIVE"
	ErrCodeExtendsCycle        = "ERR_EXTENDS_CYCLE"
	ErrCodeIncludeCycle        = "ERR_INCLUDE_CYCLE"
	ErrCodeDuplicateMacro      = "ERR_DUPLICATE_MACRO"
	ErrCodeEmptyBlockName      = "ERR_EMPTY_BLOCK_NAME"
	ErrCodeDuplicateBlock      = "ERR_DUPLICATE_BLOCK"
	ErrCodeMisplacedSuper      = "ERR_MISPLACED_SUPER"
	ErrCodeMisplacedMacroCall  = "ERR_MISPLACED_MACRO_CALL"
	ErrCodeUnknownFilter       = "ERR_UNKNOWN_FILTER"
	ErrCodeUnknownFunction     = "ERR_UNKNOWN_FUNCTION"
	ErrCodeMacroArity          = "ERR_MACRO_ARITY"
	ErrCodeMisplacedExtends    = "ERR_MISPLACED_EXTENDS"
	ErrCodeInvalidTTL          = "ERR_INVALID_TTL"
	ErrCodeTemplateNotFound    = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodePathTraversal       = "ERR_PATH_TRAVERSAL"
	ErrCodeReadFailed          = "ERR_READ_FAILED"
	ErrCodeWriteFailed         = "ERR_WRITE_FAILED"
	ErrCodeUnsupportedEncoding = "ERR_UNSUPPORTED_ENCODING"
	ErrCodeInvalidSlice        = "ERR_INVALID_SLICE"
	ErrCodeInvalidArgument     = "ERR_INVALID_ARGUMENT"
	ErrCodeEvaluation          = "ERR_EVALUATION"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeInternalError       = "ERR_INTERNAL"
)

// VoltError is a structured error type with location context.
type VoltError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *VoltError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *VoltError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code.
func (e *VoltError) Is(target error) bool {
	var t *VoltError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *VoltError) WithContext(key string, value interface{}) *VoltError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *VoltError) WithLocation(filePath string, line, column int) *VoltError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewSyntaxError creates a syntax error at a source location.
func NewSyntaxError(code, message, file string, line int) *VoltError {
	return &VoltError{
		Type:     ErrorTypeSyntax,
		Code:     code,
		Message:  message,
		FilePath: file,
		Line:     line,
	}
}

// NewSemanticError creates a semantic error at a source location.
func NewSemanticError(code, message, file string, line int) *VoltError {
	return &VoltError{
		Type:     ErrorTypeSemantic,
		Code:     code,
		Message:  message,
		FilePath: file,
		Line:     line,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *VoltError {
	return &VoltError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewFilterError creates an error raised by a runtime filter.
func NewFilterError(code, message string) *VoltError {
	return &VoltError{
		Type:    ErrorTypeRuntimeFilter,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *VoltError {
	return &VoltError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *VoltError {
	return &VoltError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func hasType(err error, typ ErrorType) bool {
	var ve *VoltError
	if errors.As(err, &ve) {
		return ve.Type == typ
	}

	return false
}

// IsSyntaxError reports whether err is a template syntax error.
func IsSyntaxError(err error) bool { return hasType(err, ErrorTypeSyntax) }

// IsSemanticError reports whether err is a template semantic error.
func IsSemanticError(err error) bool { return hasType(err, ErrorTypeSemantic) }

// IsIOError reports whether err is an I/O error.
func IsIOError(err error) bool { return hasType(err, ErrorTypeIO) }

// IsFilterError reports whether err was raised by a runtime filter.
func IsFilterError(err error) bool { return hasType(err, ErrorTypeRuntimeFilter) }

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return hasType(err, ErrorTypeConfig) }

// As is errors.As, re-exported so callers importing this package under its
// own name do not need the standard library package as well.
func As(err error, target any) bool { return errors.As(err, target) }

// LineAt returns the 1-based line and column of offset within src.
// Offsets past the end clamp to the last position.
func LineAt(src string, offset int) (line, column int) {
	if offset > len(src) {
		offset = len(src)
	}
	if offset < 0 {
		offset = 0
	}
	line = 1 + strings.Count(src[:offset], "\n")
	column = offset - strings.LastIndex(src[:offset], "\n")

	return line, column
}
