package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range within a video.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// Slice returns the part of data covered by r. r must come from ParseRange
// with len(data) as the size.
func (r Range) Slice(data []byte) []byte {
	return data[r.Start : r.End+1]
}

// UnsatisfiedContentRange is the Content-Range value sent with a 416.
func UnsatisfiedContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// ParseRange parses a Range header against a video of the given size.
// It returns nil when there is no header. Only the first range of a
// multi-range request is honoured.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = first
	}
	spec = strings.TrimSpace(spec)

	from, to, ok := strings.Cut(spec, "-")
	if !ok || strings.Contains(to, "-") {
		return nil, ErrInvalidRange
	}

	var start, end int64
	switch {
	case from == "":
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		if size == 0 {
			return nil, ErrUnsatisfiable
		}
		start = max(size-n, 0)
		end = size - 1
	default:
		var err error
		start, err = strconv.ParseInt(from, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		end = size - 1
		if to != "" {
			end, err = strconv.ParseInt(to, 10, 64)
			if err != nil {
				return nil, ErrInvalidRange
			}
		}
	}

	if start >= size || start > end {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}
