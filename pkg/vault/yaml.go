package vault

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/frontmatter"
	"github.com/nbd-wtf/go-nostr"
	"gopkg.in/yaml.v3"
)

const fence = "---"

// Split separates a leading YAML front matter block from the body. A document
// without one has an empty header.
func Split(doc string) (header, body string) {
	rest, ok := cutLine(doc, fence)
	if !ok {
		return "", doc
	}
	for offset := 0; offset <= len(rest); {
		line := rest[offset:]
		end := strings.IndexByte(line, '\n')
		if end >= 0 {
			line = line[:end]
		}
		if strings.TrimRight(line, " \r") == fence {
			header = rest[:offset]
			if end < 0 {
				return header, ""
			}
			return header, rest[offset+end+1:]
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return "", doc
}

func cutLine(s, want string) (rest string, ok bool) {
	end := strings.IndexByte(s, '\n')
	if end < 0 {
		return
	}
	if strings.TrimRight(s[:end], " \r") != want {
		return
	}
	return s[end+1:], true
}

// Join puts a header back in front of body.
func Join(header, body string) string {
	if strings.TrimSpace(header) == "" {
		return body
	}
	if !strings.HasSuffix(header, "\n") {
		header += "\n"
	}
	return fence + "\n" + header + fence + "\n" + body
}

// Decode reads the known keys of a front matter header. It accepts what
// people write by hand: tags as a list or as one comma or space separated
// string, and published_at as a number, a numeric string or a date.
func Decode(header string) (fm frontmatter.Frontmatter, err error) {
	if strings.TrimSpace(header) == "" {
		return
	}
	raw := make(map[string]any)
	if err = yaml.Unmarshal([]byte(header), &raw); err != nil {
		return fm, fmt.Errorf("invalid front matter: %w", err)
	}
	str := func(key string) string {
		switch v := raw[key].(type) {
		case nil:
			return ""
		case string:
			return strings.TrimSpace(v)
		default:
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	fm.PublicKey = str("pubkey")
	fm.Identifier = str("identifier")
	fm.Title = str("title")
	fm.Summary = str("summary")
	fm.Image = str("image")
	switch v := raw["tags"].(type) {
	case []any:
		for _, t := range v {
			if s := strings.TrimSpace(fmt.Sprint(t)); s != "" {
				fm.Tags = append(fm.Tags, s)
			}
		}
	case string:
		fm.Tags = strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' '
		})
	}
	switch v := raw["published_at"].(type) {
	case int:
		fm.PublishedAt = nostr.Timestamp(v)
	case time.Time:
		fm.PublishedAt = nostr.Timestamp(v.Unix())
	case string:
		if n, e := strconv.ParseInt(strings.TrimSpace(v), 10, 64); e == nil {
			fm.PublishedAt = nostr.Timestamp(n)
		} else {
			for _, layout := range []string{time.RFC3339, time.DateOnly} {
				if t, e := time.Parse(layout, strings.TrimSpace(v)); e == nil {
					fm.PublishedAt = nostr.Timestamp(t.Unix())
					break
				}
			}
		}
	}
	return
}

// Merge sets the non-empty fields of fm in header, leaving other keys and
// their order alone, and returns the new header.
func Merge(header string, fm frontmatter.Frontmatter) (out string, err error) {
	var doc yaml.Node
	if strings.TrimSpace(header) != "" {
		if err = yaml.Unmarshal([]byte(header), &doc); err != nil {
			return "", fmt.Errorf("invalid front matter: %w", err)
		}
	}
	var m *yaml.Node
	if len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		m = doc.Content[0]
	} else {
		m = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{m}}
	}
	set := func(key string, value any) error {
		var n yaml.Node
		if err := n.Encode(value); err != nil {
			return err
		}
		for i := 0; i+1 < len(m.Content); i += 2 {
			if m.Content[i].Value == key {
				m.Content[i+1] = &n
				return nil
			}
		}
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &n)
		return nil
	}
	for _, kv := range []struct {
		key   string
		value string
	}{
		{"pubkey", fm.PublicKey},
		{"identifier", fm.Identifier},
		{"title", fm.Title},
		{"summary", fm.Summary},
		{"image", fm.Image},
	} {
		if kv.value == "" {
			continue
		}
		if err = set(kv.key, kv.value); err != nil {
			return
		}
	}
	if fm.Tags != nil {
		if err = set("tags", fm.Tags); err != nil {
			return
		}
	}
	if fm.PublishedAt != 0 {
		if err = set("published_at", int64(fm.PublishedAt)); err != nil {
			return
		}
	}
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err = enc.Encode(&doc); err != nil {
		return
	}
	if err = enc.Close(); err != nil {
		return
	}
	return b.String(), nil
}
