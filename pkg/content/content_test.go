package content

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Hubmakerlabs/writr/pkg/blossom"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader serves each blob at server/<blob>; servers listed in reject
// refuse blobs with the given content.
type fakeUploader struct {
	sync.Mutex
	calls  map[string]int
	reject map[string]string
}

func (f *fakeUploader) Upload(_ context.T, servers []string, blob []byte,
	mimeType string, _ blossom.AuthFunc) map[string]*blossom.Descriptor {

	f.Lock()
	defer f.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[string(blob)]++
	res := make(map[string]*blossom.Descriptor)
	for _, s := range servers {
		if f.reject[s] == string(blob) || f.reject[s] == "*" {
			continue
		}
		res[s] = &blossom.Descriptor{URL: s + "/" + string(blob),
			Type: mimeType}
	}
	return res
}

type fakeDownloader map[string]string

func (f fakeDownloader) Download(_ context.T, url string) ([]byte, error) {
	if b, ok := f[url]; ok {
		return []byte(b), nil
	}
	return nil, errors.New("404")
}

func newTransformer(t *testing.T) (tr *Transformer, v *vault.Vault,
	up *fakeUploader) {

	v = vault.New(t.TempDir())
	for p, content := range map[string]string{
		"notes/a.png":     "A",
		"notes/img/b.jpg": "B",
		"assets/c.gif":    "C",
		"Other.md":        "# Other",
	} {
		require.NoError(t, v.Write(p, content))
	}
	up = &fakeUploader{}
	tr = &Transformer{
		Store:       v,
		Uploader:    up,
		Servers:     []string{"https://one.example", "https://two.example"},
		MediaFolder: "writr/media",
	}
	return
}

func TestScanEmbeds(t *testing.T) {
	tr, _, _ := newTransformer(t)
	body := "x ![[a.png]] ![remote](https://h/r.png) ![[doc.pdf]] " +
		"![b](img/b.jpg) ![[c.gif|see]] ![c](<../assets/c.gif>) " +
		"![gone](gone%20file.png)"
	embeds := tr.ScanEmbeds(body, "notes/post.md")
	require.Len(t, embeds, 5)
	for i, want := range []Embed{
		{Link: "a.png", Path: "notes/a.png"},
		{Link: "img/b.jpg", Path: "notes/img/b.jpg", Display: "b"},
		{Link: "c.gif", Path: "assets/c.gif", Display: "see"},
		{Link: "../assets/c.gif", Path: "assets/c.gif", Display: "c"},
		{Link: "gone file.png", Display: "gone"},
	} {
		assert.Equal(t, want.Link, embeds[i].Link)
		assert.Equal(t, want.Path, embeds[i].Path)
		assert.Equal(t, want.Display, embeds[i].Display)
	}
	assert.Equal(t, "![[a.png]]", body[embeds[0].Start:embeds[0].End])
	assert.False(t, tr.HasMedia("plain [[Other]] text", "notes/post.md"))
}

func TestUploadEachImageOnce(t *testing.T) {
	tr, _, up := newTransformer(t)
	up.reject = map[string]string{"https://one.example": "B"}
	body := "Intro text.\n![[a.png]]\n" +
		"Middle ![alt b](img/b.jpg) and ![[c.gif|C]] end.\n" +
		"Again ![[a.png]].\nSee [[Other]] and [[missing|Missing label]].\n"
	out, err := tr.Upload(context.Bg(), body, "notes/post.md")
	require.NoError(t, err)
	assert.Equal(t, "Intro text.\n![a](https://one.example/A)\n"+
		"Middle ![alt b](https://two.example/B) and "+
		"![C](https://one.example/C) end.\n"+
		"Again ![a](https://one.example/A).\n"+
		"See [Other](Other.md) and Missing label.\n", out)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1}, up.calls)
}

func TestUploadFailures(t *testing.T) {
	tr, _, up := newTransformer(t)
	up.reject = map[string]string{
		"https://one.example": "C",
		"https://two.example": "C",
	}
	_, err := tr.Upload(context.Bg(), "![[a.png]] ![[c.gif]]", "notes/x.md")
	require.ErrorIs(t, err, errs.ErrUploadFailed)

	_, err = tr.Upload(context.Bg(), "![[nowhere.png]]", "notes/x.md")
	require.ErrorIs(t, err, errs.ErrUploadFailed)

	tr.Servers = nil
	_, err = tr.Upload(context.Bg(), "![[a.png]]", "notes/x.md")
	require.ErrorIs(t, err, errs.ErrUploadFailed)

	out, err := tr.Upload(context.Bg(), "no media", "notes/x.md")
	require.NoError(t, err)
	assert.Equal(t, "no media", out)
}

func TestRewriteWikilinks(t *testing.T) {
	tr, _, _ := newTransformer(t)
	for in, want := range map[string]string{
		"[[Other]]":               "[Other](Other.md)",
		"[[Other|the other one]]": "[the other one](Other.md)",
		"[[c.gif]]":               "![c.gif](assets/c.gif)",
		"[[Unknown#Section]]":     "Section",
		"[[Unknown|label]] stays": "label stays",
		"no links":                "no links",
	} {
		assert.Equal(t, want, tr.RewriteWikilinks(in, "notes/post.md"), in)
	}
}

func TestDownload(t *testing.T) {
	tr, v, _ := newTransformer(t)
	tr.Downloader = fakeDownloader{
		"https://cdn.example/p/photo.jpg": "jpeg bytes",
		"https://cdn.example/raw?f=webp":  "webp bytes",
	}
	body := "![one](https://cdn.example/p/photo.jpg)\n" +
		"![two](https://cdn.example/raw?f=webp \"title\")\n" +
		"![broken](https://cdn.example/missing.png)\n" +
		"again ![one](https://cdn.example/p/photo.jpg)\n" +
		"![local](writr/media/x.png)\n"
	out := tr.Download(context.Bg(), body)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "![one](writr/media/photo.jpg)", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "![two](writr/media/"))
	require.True(t, strings.HasSuffix(lines[1], `.webp "title")`))
	assert.Equal(t, "![broken](https://cdn.example/missing.png)", lines[2])
	assert.Equal(t, "again ![one](writr/media/photo.jpg)", lines[3])
	assert.Equal(t, "![local](writr/media/x.png)", lines[4])

	b, err := v.ReadBinary("writr/media/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(b))

	assert.Equal(t, "nothing remote", tr.Download(context.Bg(),
		"nothing remote"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "b.png", FileName("https://x.example/a/b.png"))
	assert.Equal(t, "a b.png", FileName("https://x.example/a%20b.png"))
	for u, ext := range map[string]string{
		"https://x.example/img?format=jpeg": ".jpeg",
		"https://x.example/abc":             ".png",
		"https://remove.example/x":          ".png",
		"https://x.example/v_mp4/stream":    ".mp4",
	} {
		name := FileName(u)
		assert.True(t, strings.HasSuffix(name, ext), u)
		assert.Len(t, name, 16+len(ext), u)
	}
	assert.NotEqual(t, FileName("https://x.example/a"),
		FileName("https://x.example/a"))
}

func TestDownloadSameFileName(t *testing.T) {
	tr, v, _ := newTransformer(t)
	tr.Downloader = fakeDownloader{
		"https://a.example/image.png": "AAA",
		"https://b.example/image.png": "BBB",
	}
	body := "![a](https://a.example/image.png) ![b](https://b.example/image.png)"
	hashed := "writr/media/" + blossom.Hash([]byte("BBB"))[:12] + "-image.png"
	want := "![a](writr/media/image.png) ![b](" + hashed + ")"
	assert.Equal(t, want, tr.Download(context.Bg(), body))

	b, err := v.ReadBinary("writr/media/image.png")
	require.NoError(t, err)
	assert.Equal(t, "AAA", string(b))
	b, err = v.ReadBinary(hashed)
	require.NoError(t, err)
	assert.Equal(t, "BBB", string(b))

	// downloading again converges on the same files
	assert.Equal(t, want, tr.Download(context.Bg(), body))
	b, err = v.ReadBinary("writr/media/image.png")
	require.NoError(t, err)
	assert.Equal(t, "AAA", string(b))

	// an image from another document does not replace the one on disk
	tr.Downloader = fakeDownloader{"https://c.example/image.png": "CCC"}
	out := tr.Download(context.Bg(), "![c](https://c.example/image.png)")
	assert.Equal(t, "![c](writr/media/"+blossom.Hash([]byte("CCC"))[:12]+
		"-image.png)", out)
	b, err = v.ReadBinary("writr/media/image.png")
	require.NoError(t, err)
	assert.Equal(t, "AAA", string(b))
}
