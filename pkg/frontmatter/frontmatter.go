// Package frontmatter maps between the front matter and body of a markdown
// document and the tags and content of a long form content event.
package frontmatter

import (
	"bytes"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var log, chk = slog.New(os.Stderr)

// ErrIncomplete is returned when a draft is requested for front matter that
// has no identifier or author yet.
var ErrIncomplete = errors.New("front matter needs an identifier and pubkey")

// Frontmatter is the document metadata that is carried in event tags. Empty
// strings and a zero PublishedAt mean the value is absent. Identifier and
// PublicKey must not change once set, as they name the document on the
// network.
type Frontmatter struct {
	PublicKey   string          `yaml:"pubkey,omitempty" json:"pubkey,omitempty"`
	Identifier  string          `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Title       string          `yaml:"title,omitempty" json:"title,omitempty"`
	Summary     string          `yaml:"summary,omitempty" json:"summary,omitempty"`
	Image       string          `yaml:"image,omitempty" json:"image,omitempty"`
	Tags        []string        `yaml:"tags,omitempty" json:"tags,omitempty"`
	PublishedAt nostr.Timestamp `yaml:"published_at,omitempty" json:"published_at,omitempty"`
}

// Singleton tag names, each present at most once in an article.
const (
	TagIdentifier  = "d"
	TagTitle       = "title"
	TagSummary     = "summary"
	TagImage       = "image"
	TagPublishedAt = "published_at"
	TagHashtag     = "t"
)

// FromEvent reads the front matter of an article event.
func FromEvent(ev *nostr.Event) (fm Frontmatter) {
	fm.PublicKey = ev.PubKey
	fm.PublishedAt = ev.CreatedAt
	var haveTitle, haveSummary, haveImage, haveD bool
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case TagIdentifier:
			if !haveD {
				fm.Identifier, haveD = tag[1], true
			}
		case TagTitle:
			if !haveTitle {
				fm.Title, haveTitle = tag[1], true
			}
		case TagSummary:
			if !haveSummary {
				fm.Summary, haveSummary = tag[1], true
			}
		case TagImage:
			if !haveImage {
				fm.Image, haveImage = tag[1], true
			}
		case TagHashtag:
			fm.Tags = append(fm.Tags, tag[1])
		}
	}
	if tag := ev.Tags.GetFirst([]string{TagPublishedAt, ""}); tag != nil {
		if ts, err := strconv.ParseInt((*tag)[1], 10, 64); !chk.D(err) {
			fm.PublishedAt = nostr.Timestamp(ts)
		}
	}
	if fm.Title == "" {
		if fm.Title = HeadingTitle(ev.Content); fm.Title == "" {
			fm.Title = fm.Identifier
		}
	}
	return
}

// HeadingTitle returns the text of the first heading of a markdown document,
// or an empty string if it has none.
func HeadingTitle(body string) (title string) {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		if title = strings.TrimSpace(buf.String()); title != "" {
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	return
}

func setSingleton(tags nostr.Tags, name, value string) nostr.Tags {
	for i, tag := range tags {
		if len(tag) > 0 && tag[0] == name {
			tags[i] = nostr.Tag{name, value}
			// drop later duplicates so the name stays a singleton
			out := tags[:i+1]
			for _, rest := range tags[i+1:] {
				if len(rest) == 0 || rest[0] != name {
					out = append(out, rest)
				}
			}
			return out
		}
	}
	return append(tags, nostr.Tag{name, value})
}

func withoutName(tags nostr.Tags, name string) (out nostr.Tags) {
	out = make(nostr.Tags, 0, len(tags))
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == name {
			continue
		}
		out = append(out, tag)
	}
	return
}

func cloneTags(tags nostr.Tags) (out nostr.Tags) {
	out = make(nostr.Tags, len(tags))
	for i, tag := range tags {
		out[i] = append(nostr.Tag(nil), tag...)
	}
	return
}

// BuildDraft makes the unsigned event for a document. When existing is the
// current version of the same article its tags are kept and modified, so tags
// this package does not know about survive edits; otherwise only the known
// tags are written, identifier first. Singleton tags replace earlier values
// and the hashtags are rewritten from fm.Tags.
func BuildDraft(fm Frontmatter, body string, existing *nostr.Event,
	now nostr.Timestamp) (ev nostr.Event, err error) {

	if fm.Identifier == "" || fm.PublicKey == "" {
		err = ErrIncomplete
		return
	}
	ev.PubKey = fm.PublicKey
	ev.CreatedAt = now
	ev.Content = body
	ev.Kind = kind.LongFormContent.ToInt()
	var tags nostr.Tags
	if existing != nil {
		ev.Kind = existing.Kind
		tags = cloneTags(existing.Tags)
		tags = setSingleton(tags, TagIdentifier, fm.Identifier)
	} else {
		tags = nostr.Tags{{TagIdentifier, fm.Identifier}}
	}
	for _, s := range []struct{ name, value string }{
		{TagTitle, fm.Title},
		{TagSummary, fm.Summary},
		{TagImage, fm.Image},
	} {
		if s.value != "" {
			tags = setSingleton(tags, s.name, s.value)
		}
	}
	if fm.PublishedAt != 0 {
		tags = setSingleton(tags, TagPublishedAt,
			strconv.FormatInt(int64(fm.PublishedAt), 10))
	}
	tags = withoutName(tags, TagHashtag)
	seen := make(map[string]struct{}, len(fm.Tags))
	for _, t := range fm.Tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, nostr.Tag{TagHashtag, t})
	}
	ev.Tags = tags
	return
}

var hashtag = regexp.MustCompile(`(?:^|\s)#(\w+)`)

// ContentHashtags returns the #hashtags written in the body, without the
// '#', in order of first appearance.
func ContentHashtags(body string) (tags []string) {
	seen := make(map[string]struct{})
	for _, m := range hashtag.FindAllStringSubmatch(body, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		tags = append(tags, m[1])
	}
	return
}

// Slug lowercases s, turns runs of whitespace and separators into single
// dashes and drops anything else that is not a letter or digit.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Identifier derives the identifier of a document published for the first
// time from its file name and the date.
func Identifier(basename string, date time.Time) string {
	slug := Slug(basename)
	if slug == "" {
		slug = "note"
	}
	return slug + "-" + date.UTC().Format("2006-01-02")
}
