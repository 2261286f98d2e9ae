// Package httprange parses single byte-range Range headers.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable is returned when a bytes range cannot be served for the
// resource size. Callers answer 416 with Content-Range: bytes */size.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// Range is an inclusive byte interval [Start, End].
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered.
func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range value for a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Unsatisfied formats the Content-Range value for a 416 response.
func Unsatisfied(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Parse interprets header against a resource of the given size.
//
// ok is false when the full resource should be served: no header, a unit
// other than bytes, or a multi-range request. Supported forms are
// "bytes=S-E", "bytes=S-" and "bytes=-N". An end past the last byte is
// clamped.
func Parse(header string, size int64) (r Range, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Range{}, false, nil
	}
	unit, set, found := strings.Cut(header, "=")
	if !found || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return Range{}, false, nil
	}
	if strings.Contains(set, ",") {
		return Range{}, false, nil
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(set), "-")
	if !found {
		return Range{}, false, ErrUnsatisfiable
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)

	if startStr == "" {
		// bytes=-N, the last N bytes
		n, err := parseOffset(endStr)
		if err != nil || n == 0 || size == 0 {
			return Range{}, false, ErrUnsatisfiable
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, true, nil
	}

	start, err := parseOffset(startStr)
	if err != nil || start >= size {
		return Range{}, false, ErrUnsatisfiable
	}
	end := size - 1
	if endStr != "" {
		e, err := parseOffset(endStr)
		if err != nil || e < start {
			return Range{}, false, ErrUnsatisfiable
		}
		if e < end {
			end = e
		}
	}
	return Range{Start: start, End: end}, true, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, ErrUnsatisfiable
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrUnsatisfiable
	}
	return n, nil
}
