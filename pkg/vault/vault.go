// Package vault is the document store: a directory of markdown files with
// YAML front matter, and the media files they embed.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/frontmatter"
	"github.com/Hubmakerlabs/writr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Vault is rooted at a directory; every path it takes or returns is slash
// separated and relative to Root.
type Vault struct {
	Root string

	mx sync.Mutex
	// names maps lowercased base names (with and without extension) to
	// paths, for resolving wikilinks.
	names map[string][]string
}

func New(root string) *Vault { return &Vault{Root: root} }

func (v *Vault) abs(rel string) (p string, err error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" {
		return "", fmt.Errorf("empty path %q", rel)
	}
	return filepath.Join(v.Root, filepath.FromSlash(clean[1:])), nil
}

func (v *Vault) Read(rel string) (s string, err error) {
	var b []byte
	if b, err = v.ReadBinary(rel); err != nil {
		return
	}
	return string(b), nil
}

func (v *Vault) ReadBinary(rel string) (b []byte, err error) {
	var p string
	if p, err = v.abs(rel); chk.E(err) {
		return
	}
	return os.ReadFile(p)
}

// WriteBinary writes b to rel, creating parent folders and replacing any
// existing file.
func (v *Vault) WriteBinary(rel string, b []byte) (err error) {
	var p string
	if p, err = v.abs(rel); chk.E(err) {
		return
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); chk.E(err) {
		return
	}
	// written aside and renamed so readers never see a partial file
	var f *os.File
	if f, err = os.CreateTemp(filepath.Dir(p), ".writr-*"); chk.E(err) {
		return
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err = f.Write(b); chk.E(err) {
		f.Close()
		return
	}
	if err = f.Close(); chk.E(err) {
		return
	}
	if err = os.Chmod(tmp, 0o644); chk.E(err) {
		return
	}
	if err = os.Rename(tmp, p); chk.E(err) {
		return
	}
	v.forget()
	return
}

func (v *Vault) Write(rel, s string) error { return v.WriteBinary(rel, []byte(s)) }

// Create writes a new file and fails with fs.ErrExist if rel is taken.
func (v *Vault) Create(rel string, b []byte) (err error) {
	var p string
	if p, err = v.abs(rel); chk.E(err) {
		return
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); chk.E(err) {
		return
	}
	var f *os.File
	if f, err = os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL,
		0o644); err != nil {
		return
	}
	if _, err = f.Write(b); chk.E(err) {
		f.Close()
		return
	}
	if err = f.Close(); chk.E(err) {
		return
	}
	v.forget()
	return
}

func (v *Vault) Exists(rel string) bool {
	p, err := v.abs(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Mkdir creates the folder rel and its parents; an existing folder is not an
// error.
func (v *Vault) Mkdir(rel string) (err error) {
	var p string
	if p, err = v.abs(rel); chk.E(err) {
		return
	}
	return os.MkdirAll(p, 0o755)
}

// ModTime returns the modification time of rel.
func (v *Vault) ModTime(rel string) (t time.Time, err error) {
	var p string
	if p, err = v.abs(rel); chk.E(err) {
		return
	}
	var fi os.FileInfo
	if fi, err = os.Stat(p); err != nil {
		return
	}
	return fi.ModTime(), nil
}

func (v *Vault) forget() {
	v.mx.Lock()
	v.names = nil
	v.mx.Unlock()
}

func (v *Vault) scan() (names map[string][]string, err error) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if v.names != nil {
		return v.names, nil
	}
	names = make(map[string][]string)
	err = filepath.WalkDir(v.Root, func(p string, d fs.DirEntry,
		err error) error {

		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != v.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(v.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		base := strings.ToLower(d.Name())
		names[base] = append(names[base], rel)
		if ext := path.Ext(base); ext != "" {
			bare := strings.TrimSuffix(base, ext)
			names[bare] = append(names[bare], rel)
		}
		return nil
	})
	if chk.E(err) {
		return nil, err
	}
	v.names = names
	return
}

// ResolveLink finds the file a link written in the document at source points
// to. Links with a folder are tried relative to the source and then to the
// root; bare names are matched against every file in the vault, preferring
// the one closest to the source. A #heading or |label suffix is ignored.
func (v *Vault) ResolveLink(link, source string) (rel string, ok bool) {
	if i := strings.IndexAny(link, "#|"); i >= 0 {
		link = link[:i]
	}
	link = strings.TrimSpace(filepath.ToSlash(link))
	if link == "" {
		return
	}
	if strings.Contains(link, "/") {
		for _, candidate := range []string{
			path.Join(path.Dir(source), link),
			strings.TrimPrefix(path.Clean("/"+link), "/"),
		} {
			for _, c := range []string{candidate, candidate + ".md"} {
				if v.Exists(c) {
					return c, true
				}
			}
		}
		return
	}
	names, err := v.scan()
	if err != nil {
		return
	}
	matches := names[strings.ToLower(link)]
	if len(matches) == 0 {
		return
	}
	dir := path.Dir(source)
	best := matches[0]
	for _, m := range matches {
		if path.Dir(m) == dir {
			best = m
			break
		}
	}
	return best, true
}

// Document is a markdown file split into its front matter and body.
type Document struct {
	Path        string
	Frontmatter frontmatter.Frontmatter
	Body        string
	ModTime     time.Time
}

// Basename is the file name without folder and extension.
func (d *Document) Basename() string {
	base := path.Base(d.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

func (v *Vault) LoadDocument(rel string) (d *Document, err error) {
	var s string
	if s, err = v.Read(rel); err != nil {
		return
	}
	d = &Document{Path: rel}
	if d.ModTime, err = v.ModTime(rel); chk.E(err) {
		return
	}
	var header string
	header, d.Body = Split(s)
	if d.Frontmatter, err = Decode(header); err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	return
}

// SaveFrontmatter writes fm into the front matter of the document at rel,
// keeping its body and any other keys it has.
func (v *Vault) SaveFrontmatter(rel string, fm frontmatter.Frontmatter) (
	err error) {

	var s string
	if s, err = v.Read(rel); err != nil {
		return
	}
	header, body := Split(s)
	if header, err = Merge(header, fm); chk.E(err) {
		return
	}
	return v.Write(rel, Join(header, body))
}

// SaveDocument writes a complete document to rel. Front matter keys already
// in an existing file are kept unless fm sets them.
func (v *Vault) SaveDocument(rel string, fm frontmatter.Frontmatter,
	body string) (err error) {

	var header string
	if s, e := v.Read(rel); e == nil {
		header, _ = Split(s)
	} else if !errors.Is(e, fs.ErrNotExist) {
		return e
	}
	if header, err = Merge(header, fm); chk.E(err) {
		return
	}
	log.D.F("writing %s", rel)
	return v.Write(rel, Join(header, body))
}
