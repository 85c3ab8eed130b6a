package rule

import (
	"io/fs"
	"path"
	"strings"
	"sync"

	exif "github.com/dsoprea/go-exif/v3"
)

// gpsTags are the EXIF tags that place a photo on a map.
var gpsTags = map[string]bool{
	"GPSLatitude":     true,
	"GPSLongitude":    true,
	"GPSLatitudeRef":  true,
	"GPSLongitudeRef": true,
}

// exifExtensions are the image formats that carry EXIF blocks.
var exifExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// metadataScanner reads images from the site tree once and remembers
// whether they carry location data. Pages often share images, so results
// are cached by site path.
type metadataScanner struct {
	fsys fs.FS

	mu      sync.Mutex
	results map[string]bool
}

func newMetadataScanner(fsys fs.FS) *metadataScanner {
	return &metadataScanner{fsys: fsys, results: make(map[string]bool)}
}

func (s *metadataScanner) hasGPS(sitePath string) bool {
	if !exifExtensions[strings.ToLower(path.Ext(sitePath))] {
		return false
	}

	s.mu.Lock()
	found, ok := s.results[sitePath]
	s.mu.Unlock()
	if ok {
		return found
	}

	data, err := fs.ReadFile(s.fsys, sitePath)
	found = err == nil && len(GPSTags(data)) > 0

	s.mu.Lock()
	s.results[sitePath] = found
	s.mu.Unlock()
	return found
}

// GPSTags returns the location tags found in the EXIF block of an image,
// or nil when there is no EXIF data or it cannot be parsed.
func GPSTags(imageData []byte) []string {
	rawExif, err := exif.SearchAndExtractExif(imageData)
	if err != nil {
		return nil
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	var tags []string
	for _, entry := range entries {
		if gpsTags[entry.TagName] && entry.Formatted != "" {
			tags = append(tags, entry.TagName)
		}
	}
	return tags
}
