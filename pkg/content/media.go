package content

import (
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"

	"lukechampine.com/frand"
)

// DefaultExt is given to downloaded media whose URL names no known type.
const DefaultExt = ".png"

var mediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
}

// MediaType returns the mime type of a media file name, or "" if the
// extension is not an image, video or audio type.
func MediaType(name string) string {
	return mediaTypes[strings.ToLower(path.Ext(name))]
}

func IsMedia(name string) bool { return MediaType(name) != "" }

// IsImage reports whether name has an image extension.
func IsImage(name string) bool {
	return strings.HasPrefix(MediaType(name), "image/")
}

// sniff finds a media extension anywhere in a URL, such as in a query
// parameter.
var sniff = regexp.MustCompile(
	`[./=_-](png|jpg|jpeg|gif|webp|svg|avif|bmp|mp4|webm|mov|mkv|mp3|wav|ogg|m4a|flac)(?:$|[^a-z0-9])`)

// FileName derives the local file name for media downloaded from u: the last
// path segment when it has a media extension, otherwise a random name with
// an extension found in the URL, or DefaultExt.
func FileName(u string) string {
	if pu, err := url.Parse(u); err == nil {
		base := path.Base(pu.Path)
		if base != "." && base != "/" && IsMedia(base) {
			if unescaped, err := url.PathUnescape(base); err == nil {
				base = unescaped
			}
			return base
		}
	}
	ext := DefaultExt
	if m := sniff.FindAllStringSubmatch(strings.ToLower(u), -1); len(m) > 0 {
		ext = "." + m[len(m)-1][1]
	}
	return hex.EncodeToString(frand.Bytes(8)) + ext
}
