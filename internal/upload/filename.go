package upload

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/penlight/penlight/internal/util"
)

// randomLen is the length of the random component in generated filenames.
const randomLen = 25

// timestampLayout formats the leading timestamp of generated filenames.
const timestampLayout = "20060102150405"

// GenerateFilename builds a stored filename from the acting user's name and
// the client's original filename:
//
//	<timestamp>_<actor-slug>_<random><.ext>
//
// The extension is taken from the original name and lowercased; an original
// without an extension yields a name without one. The random component makes
// collisions practically impossible even for the same actor within the same
// second.
func GenerateFilename(actorName, originalName string, now time.Time) string {
	slug := util.Slugify(actorName)
	if slug == "" {
		slug = "user"
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))

	return now.Format(timestampLayout) + "_" + slug + "_" + util.RandomString(randomLen) + ext
}
