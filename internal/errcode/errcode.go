// Package errcode defines the stable error codes surfaced across package
// boundaries (path safety, config, embedding, tool dispatch) and a single
// wrap/unwrap error type carrying one, following pkg/mddb.Error's shape.
package errcode

// Code is one of the fixed, stable identifiers callers can switch on.
type Code string

const (
	InvalidInput           Code = "INVALID_INPUT"
	InvalidKind            Code = "INVALID_KIND"
	InvalidUpdate          Code = "INVALID_UPDATE"
	MissingIdentityKey     Code = "MISSING_IDENTITY_KEY"
	NotFound               Code = "NOT_FOUND"
	VaultNotFound          Code = "VAULT_NOT_FOUND"
	PathTraversal          Code = "PATH_TRAVERSAL"
	ConfigInvalid          Code = "CONFIG_INVALID"
	EmbedUnavailable       Code = "EMBED_UNAVAILABLE"
	FrontmatterUnsupported Code = "FRONTMATTER_UNSUPPORTED"
	Internal               Code = "INTERNAL"
)

// Error pairs a stable Code with the underlying cause. Error() surfaces the
// cause's message; Code is read separately by callers that need to branch on
// it (tool dispatch responses, context_status diagnostics).
type Error struct {
	Code Code
	Err  error
}

// New wraps err under code. Panics if err is nil: a code with no cause is a
// programming error, not a valid Error value.
func New(code Code, err error) *Error {
	if err == nil {
		panic("errcode: nil err")
	}

	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return string(e.Code)
	}

	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}
