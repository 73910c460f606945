package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/normalize"
)

const AppName = "writr"

var (
	// DefaultPublishRelays are used until the user configures their own.
	DefaultPublishRelays = []string{
		"wss://nos.lol",
		"wss://relay.damus.io",
		"wss://relay.nostr.band",
		"wss://relayable.org",
		"wss://nostr.rocks",
		"wss://nostr.fmt.wiz.biz",
	}
	// DefaultLookupRelays index relay lists and profiles.
	DefaultLookupRelays = []string{"wss://purplepag.es"}
	DefaultMediaServers = []string{
		"https://blossom.primal.net",
		"https://nostr.download",
	}
)

// Config is the persisted configuration of a profile.
type Config struct {
	// SecretKey is the hex or nsec key articles are signed with.
	SecretKey      string   `json:"secret_key,omitempty"`
	PublishRelays  []string `json:"publish_relays"`
	LookupRelays   []string `json:"lookup_relays"`
	LocalRelay     string   `json:"local_relay,omitempty"`
	MediaServers   []string `json:"media_servers"`
	Vault          string   `json:"vault"`
	MediaFolder    string   `json:"media_folder"`
	DownloadFolder string   `json:"download_folder"`
	// IndexPath is the directory of the local event index.
	IndexPath string `json:"index_path"`
	// FetchTimeout is in seconds.
	FetchTimeout int    `json:"fetch_timeout"`
	LogLevel     string `json:"log_level,omitempty"`
}

// Dir is where the configuration and index of writr live.
func Dir() (dir string, err error) {
	if dir, err = os.UserConfigDir(); chk.E(err) {
		return
	}
	return filepath.Join(dir, AppName), nil
}

// Path is the configuration file of profile; the empty profile is the
// default one.
func Path(profile string) (fp string, err error) {
	var dir string
	if dir, err = Dir(); err != nil {
		return
	}
	if profile == "" {
		return filepath.Join(dir, "config.json"), nil
	}
	return filepath.Join(dir, "config-"+profile+".json"), nil
}

// NewConfig returns the default configuration for a profile whose files
// live in dir.
func NewConfig(dir string) *Config {
	return &Config{
		PublishRelays:  append([]string(nil), DefaultPublishRelays...),
		LookupRelays:   append([]string(nil), DefaultLookupRelays...),
		MediaServers:   append([]string(nil), DefaultMediaServers...),
		Vault:          ".",
		MediaFolder:    "writr/media",
		DownloadFolder: "writr/downloads",
		IndexPath:      filepath.Join(dir, "index"),
		FetchTimeout:   10,
		LogLevel:       "info",
	}
}

// Timeout is the fetch timeout.
func (c *Config) Timeout() time.Duration {
	if c.FetchTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.FetchTimeout) * time.Second
}

// Normalize cleans the relay lists, dropping invalid entries.
func (c *Config) Normalize() {
	clean := func(urls []string) (out []string) {
		seen := make(map[string]struct{})
		for _, u := range urls {
			if !normalize.IsRelayURL(u) {
				log.W.F("ignoring invalid relay url '%s'", u)
				continue
			}
			n := normalize.URL(u)
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
		return
	}
	c.PublishRelays = clean(c.PublishRelays)
	c.LookupRelays = clean(c.LookupRelays)
	if c.LocalRelay != "" {
		if !normalize.IsRelayURL(c.LocalRelay) {
			log.W.F("ignoring invalid local relay url '%s'", c.LocalRelay)
			c.LocalRelay = ""
		} else {
			c.LocalRelay = normalize.URL(c.LocalRelay)
		}
	}
}

func (c *Config) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil config")
		log.E.Ln(err)
		return
	}
	if err = os.MkdirAll(filepath.Dir(filename), 0700); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); chk.E(err) {
		return
	}
	// the file holds the secret key
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

func (c *Config) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		chk.E(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); err != nil {
		return
	}
	if err = json.Unmarshal(b, c); chk.E(err) {
		return
	}
	c.Normalize()
	return
}
