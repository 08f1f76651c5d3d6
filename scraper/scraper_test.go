package scraper

import (
	"testing"

	"github.com/use-agent/shelfscan/config"
)

func TestLaunchFlags(t *testing.T) {
	find := func(fs []launchFlag, name string) (string, bool) {
		for _, f := range fs {
			if string(f.name) == name {
				return f.value, true
			}
		}
		return "", false
	}

	withImages := launchFlags(config.RenderConfig{BlockedResourceTypes: []string{"Font"}})
	if _, ok := find(withImages, "blink-settings"); ok {
		t.Error("images disabled although they are not blocked")
	}
	if v, _ := find(withImages, "disable-blink-features"); v != "AutomationControlled" {
		t.Errorf("disable-blink-features = %q", v)
	}
	if v, _ := find(withImages, "window-size"); v != windowSize {
		t.Errorf("window-size = %q", v)
	}

	blocked := launchFlags(config.RenderConfig{BlockedResourceTypes: []string{"Image", "Media"}})
	if v, ok := find(blocked, "blink-settings"); !ok || v != "imagesEnabled=false" {
		t.Errorf("blink-settings = %q, %v", v, ok)
	}
}

func TestTabWorn(t *testing.T) {
	tests := []struct {
		uses, maxUses int
		want          bool
	}{
		{0, 25, false},
		{24, 25, false},
		{25, 25, true},
		{1000, 0, false},
		{1, 1, true},
	}
	for _, tt := range tests {
		if got := (&tab{uses: tt.uses}).worn(tt.maxUses); got != tt.want {
			t.Errorf("worn(uses=%d, max=%d) = %v, want %v", tt.uses, tt.maxUses, got, tt.want)
		}
	}
}
