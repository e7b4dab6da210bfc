package catalog

import (
	"errors"
	"testing"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		raw      string
		wantID   string
		wantSlug string
		wantErr  bool
	}{
		{"https://www.bigbasket.com/pd/10000074/fresho-cauliflower-1-pc/", "10000074", "fresho-cauliflower-1-pc", false},
		{"https://www.bigbasket.com/pd/40300424/super-saver-rice?nc=cl", "40300424", "super-saver-rice", false},
		{"  https://shop.example/PD/1001/milk  ", "1001", "milk", false},
		{"https://www.bigbasket.com/cl/fruits-vegetables/", "", "", true},
		{"not a url", "", "", true},
	}
	for _, tt := range tests {
		got, err := ParseItem(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("ParseItem(%q): want ErrInvalidURL, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseItem(%q): %v", tt.raw, err)
		}
		if got.ID != tt.wantID || got.Slug != tt.wantSlug {
			t.Errorf("ParseItem(%q) = %s/%s, want %s/%s", tt.raw, got.ID, got.Slug, tt.wantID, tt.wantSlug)
		}
	}
}

func TestParseItems_SkipsCommentsAndDuplicates(t *testing.T) {
	items, invalid := ParseItems([]string{
		"# disabled",
		"",
		"https://www.bigbasket.com/pd/1/a/",
		"https://www.bigbasket.com/pd/1/a-again/",
		"https://www.bigbasket.com/pd/2/b/",
		"https://www.bigbasket.com/search?q=rice",
	})
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	if items[0].ID != "1" || items[1].ID != "2" {
		t.Errorf("order: got %s, %s", items[0].ID, items[1].ID)
	}
	if len(invalid) != 1 {
		t.Errorf("invalid: got %v", invalid)
	}
}

func TestTitle(t *testing.T) {
	it := Item{Slug: "fresho-cauliflower-1-pc"}
	if got := it.Title(); got != "Fresho Cauliflower 1 Pc" {
		t.Errorf("Title = %q", got)
	}
}

func TestDataPath(t *testing.T) {
	it := Item{ID: "1001", Slug: "milk"}
	if got := it.DataPath("abc"); got != "/_next/data/abc/pd/1001/milk.json" {
		t.Errorf("DataPath = %q", got)
	}
}

func TestBuildID(t *testing.T) {
	html := `<html><body><script id="__NEXT_DATA__" type="application/json">{"buildId":"B1","props":{"pageProps":{}}}</script></body></html>`
	if got := BuildID(html); got != "B1" {
		t.Errorf("BuildID from page state = %q", got)
	}
	html = `<html><link rel="preload" href="/_next/data/Xy_9-z/pd/1/a.json"></html>`
	if got := BuildID(html); got != "Xy_9-z" {
		t.Errorf("BuildID from reference = %q", got)
	}
	if got := BuildID("<html></html>"); got != "" {
		t.Errorf("BuildID empty page = %q", got)
	}
}

func TestPageProps(t *testing.T) {
	html := `<script id="__NEXT_DATA__">{"props":{"pageProps":{"k":1}}}</script>`
	state, ok := PageState(html)
	if !ok {
		t.Fatal("expected page state")
	}
	pp, ok := PageProps(state)
	if !ok || pp["k"] != float64(1) {
		t.Errorf("PageProps = %v, %v", pp, ok)
	}
	if _, ok := PageState(`<script id="__NEXT_DATA__">{broken</script>`); ok {
		t.Error("malformed page state should be rejected")
	}
}
