package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a brsave error code.
type ErrorCode string

const (
	ErrTypeMismatch   ErrorCode = "TYPE_MISMATCH"    // wire value incompatible with schema type
	ErrInvalid        ErrorCode = "INVALID"          // wire bytes structurally forbidden or truncated
	ErrUnimplemented  ErrorCode = "UNIMPLEMENTED"    // recognized but unsupported schema construct
	ErrSchemaNotFound ErrorCode = "SCHEMA_NOT_FOUND" // struct/enum name or .schema file missing
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"   // no visible file at path
	ErrNoMpsAtPath    ErrorCode = "NO_MPS_AT_PATH"   // no visible .mps file at path
	ErrPathTooDeep    ErrorCode = "PATH_TOO_DEEP"    // folder chain exceeded MaxPathDepth
	ErrBadSchema      ErrorCode = "BAD_SCHEMA"       // malformed type descriptor
	ErrBadArchive     ErrorCode = "BAD_ARCHIVE"      // container framing is corrupt
	ErrNotFound       ErrorCode = "NOT_FOUND"        // unknown folder/revision id
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"  // bad caller input
	ErrInternal       ErrorCode = "INTERNAL"         // I/O, SQL, anything unexpected
)

// SaveError represents a structured error with code and details.
type SaveError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *SaveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SaveError) Unwrap() error {
	return e.Err
}

// WithField returns a copy of e annotated with the decode field path.
// An already-set field is kept, so the innermost field wins.
func (e *SaveError) WithField(field string) *SaveError {
	if field == "" {
		return e
	}
	if _, ok := e.Details["field"]; ok {
		return e
	}
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details["field"] = field
	return &SaveError{
		Code:    e.Code,
		Message: fmt.Sprintf("%s (field %s)", e.Message, field),
		Details: details,
		Err:     e.Err,
	}
}

// NewTypeMismatch creates an error for a wire value the schema type does not accept.
func NewTypeMismatch(offset int, expected, observed string) *SaveError {
	return &SaveError{
		Code:    ErrTypeMismatch,
		Message: fmt.Sprintf("mismatch between schema(%s) and data(%s) at 0x%x", expected, observed, offset),
		Details: map[string]any{"offset": offset, "expected": expected, "observed": observed},
	}
}

// NewInvalid creates an error for a wire form the format forbids outright.
func NewInvalid(offset int, wire string) *SaveError {
	return &SaveError{
		Code:    ErrInvalid,
		Message: fmt.Sprintf("%s is invalid for mps at 0x%x", wire, offset),
		Details: map[string]any{"offset": offset, "observed": wire},
	}
}

// NewTruncated creates an error for reads past the end of the buffer.
func NewTruncated(offset, need, have int) *SaveError {
	return &SaveError{
		Code:    ErrInvalid,
		Message: fmt.Sprintf("unexpected end of data at 0x%x: need %d bytes, have %d", offset, need, have),
		Details: map[string]any{"offset": offset, "need": need, "have": have},
	}
}

// NewMalformed creates an INVALID error with a free-form message.
func NewMalformed(offset int, msg string) *SaveError {
	return &SaveError{
		Code:    ErrInvalid,
		Message: fmt.Sprintf("%s at 0x%x", msg, offset),
		Details: map[string]any{"offset": offset},
	}
}

// NewLookupOutOfRange creates an error for a global table index that does not resolve.
func NewLookupOutOfRange(table string, index, size int) *SaveError {
	return &SaveError{
		Code:    ErrInvalid,
		Message: fmt.Sprintf("index %d out of range for global table %s (%d entries)", index, table, size),
		Details: map[string]any{"table": table, "index": index, "size": size},
	}
}

// NewUnimplemented creates an error for schema constructs that cannot be decoded yet.
func NewUnimplemented(what string) *SaveError {
	return &SaveError{
		Code:    ErrUnimplemented,
		Message: fmt.Sprintf("not implemented: %s", what),
		Details: map[string]any{"construct": what},
	}
}

// NewSchemaNotFound creates an error for a struct or enum name absent from the schema.
func NewSchemaNotFound(name string) *SaveError {
	return &SaveError{
		Code:    ErrSchemaNotFound,
		Message: fmt.Sprintf("no struct of name %s found in schema", name),
		Details: map[string]any{"name": name},
	}
}

// NewSchemaFileNotFound creates an error when no .schema file matches an .mps file.
func NewSchemaFileNotFound(mpsPath string) *SaveError {
	return &SaveError{
		Code:    ErrSchemaNotFound,
		Message: fmt.Sprintf("no suitable .schema found for .mps: %s", mpsPath),
		Details: map[string]any{"path": mpsPath},
	}
}

// NewFileNotFound creates an error when no file is visible at a path.
func NewFileNotFound(path string) *SaveError {
	return &SaveError{
		Code:    ErrFileNotFound,
		Message: fmt.Sprintf("%s was not found in virtual filesystem", path),
		Details: map[string]any{"path": path},
	}
}

// NewNoMpsAtPath creates an error when a requested .mps file is absent.
func NewNoMpsAtPath(path string) *SaveError {
	return &SaveError{
		Code:    ErrNoMpsAtPath,
		Message: fmt.Sprintf("no .mps file at %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewPathTooDeep creates an error when the folder chain exceeds the hop limit.
func NewPathTooDeep(folderID int64, limit int) *SaveError {
	return &SaveError{
		Code:    ErrPathTooDeep,
		Message: fmt.Sprintf("too many levels deep in folder id %d (limit %d)", folderID, limit),
		Details: map[string]any{"folder_id": folderID, "limit": limit},
	}
}

// NewBadSchema creates an error for a malformed type descriptor.
func NewBadSchema(key string, descriptor any) *SaveError {
	return &SaveError{
		Code:    ErrBadSchema,
		Message: fmt.Sprintf("bad schema data at %q: %v", key, descriptor),
		Details: map[string]any{"key": key},
	}
}

// NewBadArchive creates an error for corrupt container framing.
func NewBadArchive(msg string) *SaveError {
	return &SaveError{
		Code:    ErrBadArchive,
		Message: msg,
	}
}

// NewNotFound creates an error for unknown ids.
func NewNotFound(kind string, id int64) *SaveError {
	return &SaveError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %d", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewInvalidRequest creates an error for invalid caller input.
func NewInvalidRequest(msg string) *SaveError {
	return &SaveError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *SaveError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SaveError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// As returns the first SaveError in err's chain.
func As(err error) (*SaveError, bool) {
	var sErr *SaveError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// Is checks if an error is (or wraps) a SaveError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := As(err); ok {
		return sErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first SaveError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	if sErr, ok := As(err); ok {
		return sErr.Code
	}
	return ErrInternal
}
