// Package chart turns the remote service's download counts into the ranked
// "most downloaded songs" list shown on the charts page.
package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// DefaultLimit is the number of entries the charts page shows.
const DefaultLimit = 50

// LabelSeparator joins song and artist in a chart label.
const LabelSeparator = " - "

// ErrMalformed is wrapped by every Decode failure.
var ErrMalformed = errors.New("malformed chart payload")

type Entry struct {
	Song      string `json:"song"`
	Downloads int64  `json:"downloads"`
}

// Title returns the song half of the entry's label.
func (e Entry) Title() string {
	song, _ := SplitLabel(e.Song)
	return song
}

// Artist returns the artist half of the entry's label.
func (e Entry) Artist() string {
	_, artist := SplitLabel(e.Song)
	return artist
}

// Decode validates and decodes a chart payload: a single JSON object mapping
// labels to non-negative integer download counts. Any other shape is rejected.
func Decode(body []byte) (map[string]int64, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected object, got null", ErrMalformed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}

	counts := make(map[string]int64, len(raw))
	for label, value := range raw {
		n, err := strconv.ParseInt(string(bytes.TrimSpace(value)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: count for %q is not an integer: %s", ErrMalformed, label, value)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: count for %q is negative", ErrMalformed, label)
		}
		counts[label] = n
	}
	return counts, nil
}

// Rank sorts counts by descending downloads and keeps the first limit
// entries. Equal counts are ordered by label. A non-positive limit keeps all.
func Rank(counts map[string]int64, limit int) []Entry {
	entries := make([]Entry, 0, len(counts))
	for song, downloads := range counts {
		entries = append(entries, Entry{Song: song, Downloads: downloads})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Downloads != entries[j].Downloads {
			return entries[i].Downloads > entries[j].Downloads
		}
		return entries[i].Song < entries[j].Song
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// SplitLabel splits "Song - Artist" on the first separator. Any further
// separators remain part of the artist. A label without one is all song.
func SplitLabel(label string) (song, artist string) {
	song, artist, _ = strings.Cut(label, LabelSeparator)
	return song, artist
}

// JoinLabel is the inverse of SplitLabel for songs without a separator.
func JoinLabel(song, artist string) string {
	return song + LabelSeparator + artist
}
