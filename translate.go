package sidecargo

import (
	"context"
	"errors"
	"io/fs"

	"github.com/hupe1980/sidecargo/fingerprint"
	"github.com/hupe1980/sidecargo/migrate"
	"github.com/hupe1980/sidecargo/sidecar"
)

// translateError folds package-level typed errors into the store's
// four-kind taxonomy. Context cancellation passes through untouched so
// callers can keep matching on context.Canceled.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var structured *Error
	if errors.As(err, &structured) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// User input: bad version strings, unknown migration pairs.
	var badVersion *migrate.ErrBadVersion
	var unknownPair *migrate.ErrUnknownPath
	if errors.As(err, &badVersion) || errors.As(err, &unknownPair) {
		return &Error{Kind: KindUser, Message: err.Error(), cause: err}
	}

	// Validation: a valid record was required but not available.
	var corrupt *migrate.ErrCorruptRecord
	var syntaxErr *sidecar.SyntaxError
	var schemaErr *sidecar.SchemaError
	if errors.Is(err, migrate.ErrNoRecord) ||
		errors.As(err, &corrupt) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &schemaErr) {
		return &Error{Kind: KindValidation, Message: err.Error(), cause: err}
	}

	// Filesystem trouble, retryable by rerunning the operation.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fingerprint.ErrSymlinkLoop) {
		return WrapIO(err, "filesystem")
	}

	return &Error{Kind: KindInternal, Message: err.Error(), cause: err}
}
