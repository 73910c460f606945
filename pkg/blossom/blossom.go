// Package blossom uploads blobs to blossom media servers (BUD-02) and
// downloads remote media.
package blossom

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/signer"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/Hubmakerlabs/writr/pkg/units"
	"github.com/minio/sha256-simd"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
	"github.com/valyala/fasthttp"
)

var log, chk = slog.New(os.Stderr)

// Descriptor is what a server returns for a stored blob.
type Descriptor struct {
	SHA256   string `json:"sha256"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Type     string `json:"type,omitempty"`
	Uploaded int64  `json:"uploaded,omitempty"`
}

// AuthFunc returns the Authorization header for uploading the blob with the
// given hash and size.
type AuthFunc func(c context.T, hash string, size int64) (header string,
	err error)

// Client talks to blossom servers.
type Client struct {
	HTTP    *fasthttp.Client
	Timeout time.Duration
	// MaxRedirects is how many redirects a download follows.
	MaxRedirects int
}

func New() *Client {
	return &Client{
		HTTP: &fasthttp.Client{
			Name:                "writr",
			MaxResponseBodySize: 100 * units.Mb,
		},
		Timeout:      time.Minute,
		MaxRedirects: 5,
	}
}

// Hash returns the hex sha256 of blob, which is its blossom address.
func Hash(blob []byte) string {
	h := sha256.Sum256(blob)
	return hex.EncodeToString(h[:])
}

func (cl *Client) timeout(c context.T) (d time.Duration, err error) {
	if err = c.Err(); err != nil {
		return
	}
	d = cl.Timeout
	if dl, ok := c.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d <= 0 {
		err = context.DeadlineExceeded
	}
	return
}

// UploadOne puts blob on one server.
func (cl *Client) UploadOne(c context.T, server string, blob []byte,
	mimeType string, auth AuthFunc) (d *Descriptor, err error) {

	hash := Hash(blob)
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(strings.TrimRight(server, "/") + "/upload")
	req.Header.SetMethod(fasthttp.MethodPut)
	if mimeType != "" {
		req.Header.SetContentType(mimeType)
	}
	req.Header.Set("X-SHA-256", hash)
	if auth != nil {
		var header string
		if header, err = auth(c, hash, int64(len(blob))); chk.E(err) {
			return
		}
		req.Header.Set(fasthttp.HeaderAuthorization, header)
	}
	req.SetBodyRaw(blob)
	var timeout time.Duration
	if timeout, err = cl.timeout(c); err != nil {
		return
	}
	if err = cl.HTTP.DoTimeout(req, resp, timeout); chk.D(err) {
		return
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		reason := string(resp.Header.Peek("X-Reason"))
		err = fmt.Errorf("%s returned status %d %s", server, code, reason)
		return
	}
	d = &Descriptor{}
	if err = json.Unmarshal(resp.Body(), d); chk.D(err) {
		return nil, fmt.Errorf("%s returned an invalid descriptor: %w",
			server, err)
	}
	if d.URL == "" || (d.SHA256 != "" && d.SHA256 != hash) {
		return nil, fmt.Errorf("%s returned descriptor for %s, uploaded %s",
			server, d.SHA256, hash)
	}
	if d.SHA256 == "" {
		d.SHA256 = hash
	}
	if d.Size == 0 {
		d.Size = int64(len(blob))
	}
	return
}

// Upload puts blob on every server at once. The result maps each server
// that accepted the blob to its descriptor; servers that failed are absent.
func (cl *Client) Upload(c context.T, servers []string, blob []byte,
	mimeType string, auth AuthFunc) (res map[string]*Descriptor) {

	results := xsync.NewMapOf[*Descriptor]()
	var wg sync.WaitGroup
	wg.Add(len(servers))
	for _, server := range servers {
		go func(server string) {
			defer wg.Done()
			d, err := cl.UploadOne(c, server, blob, mimeType, auth)
			if err != nil {
				log.W.F("upload to %s failed: %s", server, err)
				return
			}
			log.D.F("uploaded %s to %s", units.Format(d.Size), server)
			results.Store(server, d)
		}(server)
	}
	wg.Wait()
	res = make(map[string]*Descriptor, results.Size())
	results.Range(func(server string, d *Descriptor) bool {
		res[server] = d
		return true
	})
	return
}

// do runs req with deadline and returns early when c is done. A request
// given up on keeps running in the background until the deadline, so req
// and resp must not come from the fasthttp pools.
func (cl *Client) do(c context.T, req *fasthttp.Request,
	resp *fasthttp.Response, deadline time.Time) (err error) {

	done := make(chan error, 1)
	go func() { done <- cl.HTTP.DoDeadline(req, resp, deadline) }()
	select {
	case err = <-done:
	case <-c.Done():
		err = c.Err()
	}
	return
}

// Download fetches the body at url, following up to MaxRedirects redirects.
// The whole exchange is bounded by Timeout and by c.
func (cl *Client) Download(c context.T, url string) (b []byte, err error) {
	var timeout time.Duration
	if timeout, err = cl.timeout(c); err != nil {
		return
	}
	deadline := time.Now().Add(timeout)
	for hop := 0; ; hop++ {
		req, resp := &fasthttp.Request{}, &fasthttp.Response{}
		req.SetRequestURI(url)
		req.Header.SetMethod(fasthttp.MethodGet)
		if err = cl.do(c, req, resp, deadline); chk.D(err) {
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}
		code := resp.StatusCode()
		if !fasthttp.StatusCodeIsRedirect(code) {
			if code != fasthttp.StatusOK {
				return nil, fmt.Errorf("GET %s: status %d", url, code)
			}
			b = append([]byte(nil), resp.Body()...)
			return
		}
		loc := resp.Header.Peek(fasthttp.HeaderLocation)
		if len(loc) == 0 {
			return nil, fmt.Errorf("GET %s: redirect without location", url)
		}
		if hop >= cl.MaxRedirects {
			return nil, fmt.Errorf("GET %s: too many redirects", url)
		}
		next := req.URI()
		next.UpdateBytes(loc)
		url = next.String()
	}
}

// SignerAuth authorizes uploads with a kind 24242 event signed by s, valid
// for ttl.
func SignerAuth(s signer.Signer, ttl time.Duration) AuthFunc {
	return func(c context.T, hash string, size int64) (header string,
		err error) {

		now := nostr.Now()
		draft := nostr.Event{
			Kind:      kind.BlossomAuth.ToInt(),
			CreatedAt: now,
			Content:   "Upload " + hash,
			Tags: nostr.Tags{
				{"t", "upload"},
				{"x", hash},
				{"size", strconv.FormatInt(size, 10)},
				{"expiration", strconv.FormatInt(
					int64(now)+int64(ttl/time.Second), 10)},
			},
		}
		var ev *nostr.Event
		if ev, err = s.Sign(c, draft); err != nil {
			return
		}
		var b []byte
		if b, err = json.Marshal(ev); chk.E(err) {
			return
		}
		return "Nostr " + base64.StdEncoding.EncodeToString(b), nil
	}
}
