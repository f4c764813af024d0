// package images is the deduplicating local asset store for artwork.
//
// Raw bytes are persisted in two size variants plus a display style derived
// once at association time. Object URLs are never persisted; they are
// materialized lazily and reference-counted so a restart starts clean.
package images

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/jpeg"
	"image/png"
	_ "image/png"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	alias_of TEXT,
	mime TEXT,
	large BLOB,
	small BLOB,
	style TEXT
);
`

// smallBound is the bounding box of the always-derived small variant.
const smallBound = 128

// Size selects a stored image variant.
type Size string

const (
	SizeLarge Size = "large"
	SizeSmall Size = "small"
)

// Bounds is a bounding box for downsampling.
type Bounds struct {
	Width  int
	Height int
}

// ErrNoImage is returned when an id has no stored image.
var ErrNoImage = errors.New("no image stored")

// Store persists artwork blobs in sqlite.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	urls *urlTable
}

// NewStore creates the backing table if needed.
func NewStore(db *sql.DB, logger *log.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create images table: %w", err)
	}
	return &Store{db: db, logger: logger, urls: newURLTable()}, nil
}

// Associate stores image data under id. When resize is set the large
// variant is downsampled to fit the bounds; upsampling never happens. A
// 128px-bounded small variant and the display style are always derived.
func (s *Store) Associate(id string, data []byte, resize *Bounds) error {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image %s: %w", id, err)
	}
	if format != "jpeg" {
		// Variants are re-encoded; everything that isn't jpeg comes back as png.
		format = "png"
	}

	large := data
	if resize != nil {
		scaled := scaleDown(img, resize.Width, resize.Height)
		if scaled != img {
			if large, err = encode(scaled, format); err != nil {
				return fmt.Errorf("failed to encode resized image %s: %w", id, err)
			}
			img = scaled
		}
	}

	small, err := encode(scaleDown(img, smallBound, smallBound), format)
	if err != nil {
		return fmt.Errorf("failed to encode small variant of %s: %w", id, err)
	}

	style, err := deriveStyle(img)
	if err != nil {
		return fmt.Errorf("failed to derive style of %s: %w", id, err)
	}

	// Stale URLs would keep serving the previous bytes.
	s.urls.evict(id)

	_, err = s.db.Exec(
		`INSERT INTO images (id, alias_of, mime, large, small, style)
		 VALUES (?, NULL, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			alias_of = NULL, mime = excluded.mime, large = excluded.large,
			small = excluded.small, style = excluded.style`,
		id, "image/"+format, large, small, encodeStyle(style),
	)
	if err != nil {
		return fmt.Errorf("failed to persist image %s: %w", id, err)
	}
	return nil
}

// resolve follows the alias chain to the id physically holding data.
func (s *Store) resolve(id string) (string, error) {
	for {
		var alias sql.NullString
		err := s.db.QueryRow(`SELECT alias_of FROM images WHERE id = ?`, id).Scan(&alias)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNoImage, id)
		}
		if err != nil {
			return "", fmt.Errorf("failed to resolve image %s: %w", id, err)
		}
		if !alias.Valid {
			return id, nil
		}
		id = alias.String
	}
}

// Blob returns the stored bytes of a variant, flattening aliases.
func (s *Store) Blob(id string, size Size) ([]byte, string, error) {
	canonical, err := s.resolve(id)
	if err != nil {
		return nil, "", err
	}

	column := "large"
	if size == SizeSmall {
		column = "small"
	}

	var data []byte
	var mime string
	err = s.db.QueryRow(
		fmt.Sprintf(`SELECT %s, mime FROM images WHERE id = ?`, column), canonical,
	).Scan(&data, &mime)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image %s: %w", id, err)
	}
	return data, mime, nil
}

// Style returns the display style derived from the image.
func (s *Store) Style(id string) (*Style, error) {
	canonical, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	var raw string
	if err := s.db.QueryRow(`SELECT style FROM images WHERE id = ?`, canonical).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read style of %s: %w", id, err)
	}
	return decodeStyle(raw)
}

// Remove drops an image and evicts any live URLs for it.
func (s *Store) Remove(id string) error {
	s.urls.evict(id)
	if _, err := s.db.Exec(`DELETE FROM images WHERE id = ? OR alias_of = ?`, id, id); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", id, err)
	}
	return nil
}

// Clear drops every stored image.
func (s *Store) Clear() error {
	s.urls.evictAll()
	if _, err := s.db.Exec(`DELETE FROM images`); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	return nil
}

// Deduplicate merges byte-identical stored images into alias rows pointing
// at one canonical id. Candidates are grouped by byte length, filtered by a
// probe byte at the middle offset, then compared in full. Returns the
// number of images merged.
func (s *Store) Deduplicate() (int, error) {
	rows, err := s.db.Query(
		`SELECT id, length(large) FROM images WHERE alias_of IS NULL ORDER BY id`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate images: %w", err)
	}
	defer rows.Close()

	byLength := make(map[int][]string)
	for rows.Next() {
		var id string
		var length int
		if err := rows.Scan(&id, &length); err != nil {
			return 0, fmt.Errorf("failed to scan image row: %w", err)
		}
		byLength[length] = append(byLength[length], id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	merged := 0
	for length, ids := range byLength {
		if len(ids) < 2 {
			continue
		}

		// Probe one byte before loading whole blobs.
		byProbe := make(map[byte][]string)
		for _, id := range ids {
			var probe []byte
			err := s.db.QueryRow(
				`SELECT substr(large, ?, 1) FROM images WHERE id = ?`, length/2+1, id,
			).Scan(&probe)
			if err != nil {
				return merged, fmt.Errorf("failed to probe image %s: %w", id, err)
			}
			var b byte
			if len(probe) > 0 {
				b = probe[0]
			}
			byProbe[b] = append(byProbe[b], id)
		}

		for _, group := range byProbe {
			if len(group) < 2 {
				continue
			}
			n, err := s.mergeGroup(group)
			if err != nil {
				return merged, err
			}
			merged += n
		}
	}

	if s.logger != nil && merged > 0 {
		s.logger.Info("deduplicated images", "merged", merged)
	}
	return merged, nil
}

// mergeGroup byte-compares candidate images and rewrites exact duplicates
// as aliases of the first match.
func (s *Store) mergeGroup(ids []string) (int, error) {
	blobs := make(map[string][]byte, len(ids))
	for _, id := range ids {
		var data []byte
		if err := s.db.QueryRow(`SELECT large FROM images WHERE id = ?`, id).Scan(&data); err != nil {
			return 0, fmt.Errorf("failed to load image %s: %w", id, err)
		}
		blobs[id] = data
	}

	merged := 0
	canonical := make([]string, 0, len(ids))
	for _, id := range ids {
		var target string
		for _, c := range canonical {
			if bytes.Equal(blobs[id], blobs[c]) {
				target = c
				break
			}
		}
		if target == "" {
			canonical = append(canonical, id)
			continue
		}

		s.urls.evict(id)
		_, err := s.db.Exec(
			`UPDATE images SET alias_of = ?, large = NULL, small = NULL, style = '' WHERE id = ?`,
			target, id,
		)
		if err != nil {
			return merged, fmt.Errorf("failed to alias image %s: %w", id, err)
		}
		merged++
	}
	return merged, nil
}

// scaleDown fits img into a bounding box, returning img unchanged when it
// already fits (scale factor >= 1 is a no-op).
func scaleDown(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	sw := float64(width) / float64(b.Dx())
	sh := float64(height) / float64(b.Dy())
	scale := min(sw, sh)
	if scale >= 1 {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
