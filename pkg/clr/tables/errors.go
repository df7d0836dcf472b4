package tables

import (
	"io"

	"github.com/cockroachdb/errors"
)

// ErrBadImageFormat marks errors caused by malformed metadata. Test for it
// with errors.Is.
var ErrBadImageFormat = errors.New("bad image format")

func badImagef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBadImageFormat, format, args...)
}

// BadImage marks err as a format error.
func BadImage(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrBadImageFormat)
}

func truncated(what string, off int) error {
	return BadImage(io.ErrUnexpectedEOF, "reading %s at offset %d", what, off)
}
