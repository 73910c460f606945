// Package content rewrites the media and links of a document body between
// its local form in the vault and its portable form on the network.
package content

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/Hubmakerlabs/writr/pkg/blossom"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

// Store is the part of the document store the transformer reads media from
// and writes downloads to.
type Store interface {
	ReadBinary(rel string) ([]byte, error)
	WriteBinary(rel string, b []byte) error
	Mkdir(rel string) error
	ResolveLink(link, source string) (rel string, ok bool)
}

// Uploader stores a blob on several media servers at once, returning the
// descriptor of every server that accepted it.
type Uploader interface {
	Upload(c context.T, servers []string, blob []byte, mimeType string,
		auth blossom.AuthFunc) map[string]*blossom.Descriptor
}

// Downloader fetches remote media.
type Downloader interface {
	Download(c context.T, url string) ([]byte, error)
}

// Transformer converts document bodies for publishing and after download.
type Transformer struct {
	Store      Store
	Uploader   Uploader
	Downloader Downloader
	// Servers are the media servers in order of preference.
	Servers []string
	Auth    blossom.AuthFunc
	// MediaFolder is where downloaded media is written.
	MediaFolder string
}

// Embed is a local media file embedded in a body, spanning body[Start:End].
type Embed struct {
	Link    string
	Path    string
	Display string
	Start   int
	End     int
}

var (
	wikiEmbed = regexp.MustCompile(`!\[\[([^\]|]+?)(?:\|([^\]]*))?\]\]`)
	mdEmbed   = regexp.MustCompile(`!\[([^\]]*)\]\((?:<([^>]+)>|([^)\s]+))\)`)
	wikilink  = regexp.MustCompile(`(!?)\[\[([^\]|]+?)(?:\|([^\]]*))?\]\]`)
)

func isRemote(link string) bool {
	return strings.Contains(link, "://") || strings.HasPrefix(link, "data:")
}

// ScanEmbeds finds the embeds of local media files in body, in order. Links
// are resolved against the store relative to source; an embed whose file is
// not in the store has an empty Path.
func (t *Transformer) ScanEmbeds(body, source string) (embeds []Embed) {
	for _, m := range wikiEmbed.FindAllStringSubmatchIndex(body, -1) {
		link := strings.TrimSpace(body[m[2]:m[3]])
		if !IsMedia(link) {
			continue
		}
		e := Embed{Link: link, Start: m[0], End: m[1]}
		if m[4] >= 0 {
			e.Display = body[m[4]:m[5]]
		}
		e.Path, _ = t.Store.ResolveLink(link, source)
		embeds = append(embeds, e)
	}
	for _, m := range mdEmbed.FindAllStringSubmatchIndex(body, -1) {
		var link string
		if m[4] >= 0 {
			link = body[m[4]:m[5]]
		} else {
			link = body[m[6]:m[7]]
		}
		if isRemote(link) {
			continue
		}
		if unescaped, err := url.PathUnescape(link); err == nil {
			link = unescaped
		}
		if !IsMedia(link) {
			continue
		}
		e := Embed{Link: link, Display: body[m[2]:m[3]], Start: m[0],
			End: m[1]}
		e.Path, _ = t.Store.ResolveLink(link, source)
		embeds = append(embeds, e)
	}
	slices.SortFunc(embeds, func(a, b Embed) int { return a.Start - b.Start })
	return
}

// HasMedia reports whether body embeds any local media.
func (t *Transformer) HasMedia(body, source string) bool {
	return len(t.ScanEmbeds(body, source)) > 0
}

// pick returns the descriptor of the first server in preference order that
// accepted the upload.
func (t *Transformer) pick(res map[string]*blossom.Descriptor) (
	d *blossom.Descriptor) {

	for _, server := range t.Servers {
		if d = res[server]; d != nil {
			return
		}
	}
	return nil
}

// Upload puts every local media file embedded in body on the media servers
// and returns the body with the embeds replaced by the served URLs and the
// remaining wikilinks rewritten. A file embedded several times is uploaded
// once. If any file cannot be uploaded to at least one server the error wraps
// errs.ErrUploadFailed.
func (t *Transformer) Upload(c context.T, body, source string) (out string,
	err error) {

	embeds := t.ScanEmbeds(body, source)
	if len(embeds) > 0 && len(t.Servers) == 0 {
		return "", fmt.Errorf("%w: no media servers configured",
			errs.ErrUploadFailed)
	}
	urls := make(map[string]string)
	for _, e := range embeds {
		if e.Path == "" {
			return "", fmt.Errorf("%w: %s is not in the vault",
				errs.ErrUploadFailed, e.Link)
		}
		if _, ok := urls[e.Path]; ok {
			continue
		}
		var blob []byte
		if blob, err = t.Store.ReadBinary(e.Path); chk.E(err) {
			return "", fmt.Errorf("%w: %s: %w", errs.ErrUploadFailed,
				e.Path, err)
		}
		if err = c.Err(); err != nil {
			return
		}
		res := t.Uploader.Upload(c, t.Servers, blob, MediaType(e.Path), t.Auth)
		d := t.pick(res)
		if d == nil {
			return "", fmt.Errorf("%w: %s was rejected by every media server",
				errs.ErrUploadFailed, e.Path)
		}
		log.D.F("uploaded %s to %s", e.Path, d.URL)
		urls[e.Path] = d.URL
	}
	out = body
	for i := len(embeds) - 1; i >= 0; i-- {
		e := embeds[i]
		out = out[:e.Start] + Render(e.Display, urls[e.Path], e.Path) +
			out[e.End:]
	}
	return t.RewriteWikilinks(out, source), nil
}

// Render writes the portable markdown for media at target. Videos and audio
// are written as links, images as images.
func Render(display, target, file string) string {
	if display == "" {
		display = strings.TrimSuffix(path.Base(file), path.Ext(file))
	}
	if strings.ContainsAny(target, " ()") {
		target = "<" + target + ">"
	}
	if IsImage(file) {
		return "![" + display + "](" + target + ")"
	}
	return "[" + display + "](" + target + ")"
}

// RewriteWikilinks turns [[target|label]] links into markdown links, or
// images when the target is an image. Links that do not resolve become their
// label.
func (t *Transformer) RewriteWikilinks(body, source string) string {
	return wikilink.ReplaceAllStringFunc(body, func(s string) string {
		m := wikilink.FindStringSubmatch(s)
		target, label := strings.TrimSpace(m[2]), m[3]
		if label == "" {
			label = target
			if i := strings.LastIndex(label, "#"); i >= 0 && i+1 < len(label) {
				label = label[i+1:]
			}
		}
		rel, ok := t.Store.ResolveLink(target, source)
		if !ok {
			return label
		}
		return Render(label, rel, rel)
	})
}

// RemoteImages lists the distinct remote image URLs of a markdown body, in
// order.
func RemoteImages(body string) (urls []string) {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	seen := make(map[string]struct{})
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := n.(*ast.Image)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		dest := string(img.Destination)
		if !strings.HasPrefix(dest, "http://") &&
			!strings.HasPrefix(dest, "https://") {
			return ast.WalkContinue, nil
		}
		if _, dup := seen[dest]; !dup {
			seen[dest] = struct{}{}
			urls = append(urls, dest)
		}
		return ast.WalkContinue, nil
	})
	return
}

// localName picks the media folder path for blob b fetched from u. When the
// plain name already holds another image, written earlier in this run or
// found on disk with different bytes, the blob hash is prefixed to it. The
// result only depends on the urls and their bytes, so downloading the same
// body again writes the same files.
func (t *Transformer) localName(u string, b []byte,
	taken map[string]string) (rel string) {

	name := FileName(u)
	rel = path.Join(t.MediaFolder, name)
	clash := false
	if owner, ok := taken[rel]; ok {
		clash = owner != u
	} else if old, err := t.Store.ReadBinary(rel); err == nil {
		clash = !bytes.Equal(old, b)
	}
	if clash {
		rel = path.Join(t.MediaFolder, blossom.Hash(b)[:12]+"-"+name)
		log.D.F("%s is taken, saving %s as %s", name, u, rel)
	}
	taken[rel] = u
	return
}

// Download saves the remote images of body into the media folder and returns
// the body pointing at the local copies. Images that fail to download keep
// their remote URL.
func (t *Transformer) Download(c context.T, body string) (out string) {
	urls := RemoteImages(body)
	if len(urls) == 0 {
		return body
	}
	if err := t.Store.Mkdir(t.MediaFolder); chk.E(err) {
		return body
	}
	out = body
	taken := make(map[string]string)
	for _, u := range urls {
		b, err := t.Downloader.Download(c, u)
		if err != nil {
			log.W.F("keeping remote image %s: %s", u, err)
			continue
		}
		rel := t.localName(u, b, taken)
		if err = t.Store.WriteBinary(rel, b); chk.E(err) {
			continue
		}
		local := rel
		if strings.ContainsAny(local, " ()") {
			local = "<" + local + ">"
		}
		out = strings.ReplaceAll(out, "("+u+")", "("+local+")")
		out = strings.ReplaceAll(out, "("+u+" ", "("+local+" ")
		out = strings.ReplaceAll(out, "(<"+u+">", "("+local)
	}
	return
}
