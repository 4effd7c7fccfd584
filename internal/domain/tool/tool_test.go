package tool

import "testing"

func TestImageTag(t *testing.T) {
	tests := []struct {
		image, tag, name string
	}{
		{"library/centos:7", "7", "library/centos"},
		{"library/centos", "latest", "library/centos"},
		{"registry:5000/library/centos", "latest", "registry:5000/library/centos"},
		{"registry:5000/library/centos:v2", "v2", "registry:5000/library/centos"},
	}
	for _, tt := range tests {
		if got := ImageTag(tt.image); got != tt.tag {
			t.Errorf("ImageTag(%q) = %q, want %q", tt.image, got, tt.tag)
		}
		if got := ImageName(tt.image); got != tt.name {
			t.Errorf("ImageName(%q) = %q, want %q", tt.image, got, tt.name)
		}
	}
}

func TestVersionFallsBackToLatest(t *testing.T) {
	tl := Tool{Versions: map[string]VersionSettings{"latest": {}}}
	if _, ok := tl.Version(""); !ok {
		t.Fatal("expected latest settings for empty tag")
	}
	if _, ok := tl.Version("v1"); ok {
		t.Fatal("unexpected settings for unknown tag")
	}
}
