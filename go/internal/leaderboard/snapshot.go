package leaderboard

import (
	"bufio"
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry is a single ranked player in the leaderboard.
type Entry struct {
	Identity string  `json:"identity"`
	Score    float64 `json:"score"`
}

// Snapshot is a ranked leaderboard together with the instant it was taken.
// Only Entries are written to the sink so identical scores produce identical documents.
type Snapshot struct {
	Entries []Entry
	TakenAt time.Time
	Skipped int
}

// MaxRowBytes is the longest score row accepted. Longer rows are skipped.
const MaxRowBytes = 64 * 1024

// Parse reads a raw score table where every non-blank line is "identity, score".
// Rows with fewer than two fields, an empty identity, a non-numeric (or
// non-finite) score or more than MaxRowBytes are skipped and counted. The
// remaining rows keep their order.
func Parse(raw []byte) ([]Entry, int) {
	entries := make([]Entry, 0)
	skipped := 0

	reader := bufio.NewReader(bytes.NewReader(raw))
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			entry, ok, blank := parseRow(line)
			switch {
			case blank:
			case ok:
				entries = append(entries, entry)
			default:
				skipped++
			}
		}
		if err != nil {
			// the reader is over memory, so the only error is io.EOF
			break
		}
	}

	return entries, skipped
}

func parseRow(line string) (entry Entry, ok, blank bool) {
	if len(line) > MaxRowBytes {
		return Entry{}, false, false
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false, true
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Entry{}, false, false
	}

	identity := strings.TrimSpace(fields[0])
	score, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if identity == "" || err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return Entry{}, false, false
	}
	return Entry{Identity: identity, Score: score}, true, false
}

// Rank sorts entries by score, highest first. Ties keep their input order.
func Rank(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// Build parses and ranks a raw score table in one step.
func Build(raw []byte, takenAt time.Time) Snapshot {
	entries, skipped := Parse(raw)
	return Snapshot{
		Entries: Rank(entries),
		TakenAt: takenAt,
		Skipped: skipped,
	}
}
