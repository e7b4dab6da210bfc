package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Mode != ModeBrowser || !c.Resolver.Auto || !c.PreferStructured || !c.ScreenshotOnAlert {
		t.Errorf("defaults = %+v", c)
	}
	if c.AlertEveryInStock {
		t.Error("alert_every_in_stock must be opt-in")
	}
	if c.Storefront.CookieDomain != ".bigbasket.com" {
		t.Errorf("cookie domain = %q", c.Storefront.CookieDomain)
	}
	if c.Home() != "https://www.bigbasket.com/" {
		t.Errorf("home = %q", c.Home())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestParse(t *testing.T) {
	// WHAT: explicit false survives; durations parse; sqlite path follows backend.
	// WHY: true defaults are set before decoding, not patched after.
	c, err := Parse([]byte(`
storefront:
  base_url: https://shop.example/
mode: HTTP
items:
  - https://shop.example/pd/1/a/
locations: ["110001", "560001"]
resolver:
  auto: false
  strategies: [cookies, manual]
prefer_structured: false
state:
  backend: sqlite
poll:
  interval: 5m
browser:
  action_timeout: 15s
  window_width: 1280
  window_height: 800
notify:
  telegram:
    chat_id: "-100"
    topic_id: "7"
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != ModeHTTP {
		t.Errorf("mode = %q", c.Mode)
	}
	if c.Resolver.Auto || c.PreferStructured {
		t.Error("explicit false overridden by default")
	}
	if !c.ScreenshotOnAlert {
		t.Error("absent key lost its default")
	}
	if c.Poll.Interval != 5*time.Minute || c.Poll.ItemDelay != 2*time.Second {
		t.Errorf("poll = %+v", c.Poll)
	}
	if c.Browser.ActionTimeout != 15*time.Second || c.Browser.WindowWidth != 1280 || c.Browser.WindowHeight != 800 {
		t.Errorf("browser = %+v", c.Browser)
	}
	if c.State.Path != "pinwatch_state.db" {
		t.Errorf("state path = %q", c.State.Path)
	}
	if c.Storefront.BaseURL != "https://shop.example" || c.Storefront.CookieDomain != ".shop.example" {
		t.Errorf("storefront = %+v", c.Storefront)
	}
	if len(c.Resolver.Strategies) != 2 || c.Notify.Telegram.TopicID != "7" {
		t.Errorf("resolver = %+v telegram = %+v", c.Resolver, c.Notify.Telegram)
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("mode: carrier-pigeon\nstate: {backend: csv}\n"))
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{"mode", "state.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{EnvTelegramToken: " 123:abc ", EnvState: "/tmp/s.json"}
	c.ApplyEnv(func(k string) string { return env[k] })
	if c.Notify.Telegram.BotToken != "123:abc" || c.State.Path != "/tmp/s.json" {
		t.Errorf("env not applied: %+v %+v", c.Notify.Telegram, c.State)
	}
}
