// package lyrics fetches plain and time-synced lyrics for songs from
// external sources, consulted in registration order.
package lyrics

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/UniMusic-app/unimusic/internal/objects"
)

// SyncedLine is a lyric line with its timestamp in seconds.
type SyncedLine struct {
	Timestamp float64 `json:"timestamp"`
	Line      string  `json:"line"`
}

// ProviderInfo names the source the lyrics came from, for attribution.
type ProviderInfo struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Lyrics are the fetched lyrics of one song. SyncedLyrics is present only
// when the source has word timing.
type Lyrics struct {
	Provider     ProviderInfo `json:"provider"`
	Lyrics       []string     `json:"lyrics"`
	SyncedLyrics []SyncedLine `json:"syncedLyrics,omitempty"`
}

// Provider fetches lyrics for a song. GetLyrics returns (nil, nil) when
// the source has no match.
type Provider interface {
	Name() string
	GetLyrics(ctx context.Context, song *objects.Song) (*Lyrics, error)
}

// ISRCLookup is implemented by providers that can resolve lyrics from an
// ISRC alone.
type ISRCLookup interface {
	GetLyricsFromISRC(ctx context.Context, isrc string) (*Lyrics, error)
}

// ParseLines splits plain lyrics into trimmed lines.
func ParseLines(lines string) []string {
	split := regexp.MustCompile(`\r?\n`).Split(lines, -1)
	for i, line := range split {
		split[i] = strings.TrimSpace(line)
	}
	return split
}

var syncedLinePattern = regexp.MustCompile(`\[(.+?)\](.+)`)

// ParseSyncedLines parses LRC-format lines, '[mm:ss.xx] lyric' or
// '[mm:ss.xxx] lyric'. Lines that do not match are skipped.
func ParseSyncedLines(lines string) []SyncedLine {
	var synced []SyncedLine
	for _, raw := range regexp.MustCompile(`\r?\n`).Split(lines, -1) {
		match := syncedLinePattern.FindStringSubmatch(raw)
		if match == nil {
			continue
		}

		parts := regexp.MustCompile(`[:.]`).Split(match[1], 3)
		if len(parts) != 3 {
			continue
		}

		minutes, _ := strconv.ParseFloat(parts[0], 64)
		seconds, _ := strconv.ParseFloat(parts[1], 64)
		millis, _ := strconv.ParseFloat(parts[2], 64)

		divisor := 1000.0
		if len(parts[2]) == 2 {
			divisor = 100
		}

		synced = append(synced, SyncedLine{
			Timestamp: minutes*60 + seconds + millis/divisor,
			Line:      strings.TrimSpace(match[2]),
		})
	}
	return synced
}
