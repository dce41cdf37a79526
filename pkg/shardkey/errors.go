package shardkey

import (
	"errors"
	"strings"
)

// Sentinel errors categorizing composite key failures. Wrap them in an
// *Error to attach the operation and the offending field names; match
// with errors.Is / errors.As.
var (
	// ErrMissingField indicates a configured field is not present in the
	// field catalog. Raised only during configuration validation and
	// fatal to startup.
	ErrMissingField = errors.New("field not present in catalog")

	// ErrInvalidConfiguration indicates the option set itself is unusable,
	// for example overwrite-by-key requested on fields that are not
	// indexed. Raised only during configuration validation and fatal to
	// startup.
	ErrInvalidConfiguration = errors.New("invalid composite key configuration")

	// ErrInvalidFieldValue indicates a document is missing a value that
	// key construction requires. Raised per document; the document is
	// rejected, the process keeps running.
	ErrInvalidFieldValue = errors.New("missing or empty field value")

	// ErrInvalidKey indicates a composite key string or its parts do not
	// form a well-formed "<prefix>!<postfix>" value.
	ErrInvalidKey = errors.New("malformed composite key")
)

// Error describes a composite key failure with the failing operation and
// the field names involved.
type Error struct {
	// Op is the operation that failed, such as "ParseOptions", "Validate"
	// or "Build".
	Op string

	// Fields holds the offending field names, if any.
	Fields []string

	// Err is the sentinel categorizing the failure.
	Err error

	// Msg is an optional elaboration.
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
		b.WriteString(": ")
	}
	if len(e.Fields) > 0 {
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns the underlying sentinel so errors.Is and errors.As see
// through the wrapper.
func (e *Error) Unwrap() error {
	return e.Err
}
