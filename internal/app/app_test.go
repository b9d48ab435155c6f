package app

import (
	"bytes"
	"encoding/hex"
	"testing"

	"dlst-go/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	a, err := NewApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestFindWorkID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{path: "RJ123456.dlst", want: "RJ123456"},
		{path: "/works/rj01234567 some title.dlst", want: "RJ01234567"},
		{path: "VJ654321_audio.dlst", want: "VJ654321"},
		{path: "no id here.dlst", want: ""},
		{path: "/works/RJ123456/inner.dlst", want: ""}, // only the base name is searched
	}
	for _, tt := range tests {
		if got := FindWorkID(tt.path); got != tt.want {
			t.Errorf("FindWorkID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestApp_ResolveKey_ExplicitHex(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	keyHex := "06a9214036b8a15b512e03d534120006"
	ivHex := "3dafba429d9eb430b422da802c9fac41"
	key, iv, err := a.ResolveKey("whatever.dlst", "", keyHex, ivHex)
	if err != nil {
		t.Fatalf("ResolveKey() error = %v", err)
	}
	if hex.EncodeToString(key) != keyHex || hex.EncodeToString(iv) != ivHex {
		t.Error("explicit hex key/IV were not passed through")
	}
}

func TestApp_ResolveKey_FromKeyring(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	storedKey := bytes.Repeat([]byte{0x11}, 16)
	storedIV := bytes.Repeat([]byte{0x22}, 16)
	if _, err := a.Keyring().Put("RJ123456", storedKey, storedIV, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Work ID inferred from the container name.
	key, iv, err := a.ResolveKey("/works/RJ123456.dlst", "", "", "")
	if err != nil {
		t.Fatalf("ResolveKey() error = %v", err)
	}
	if !bytes.Equal(key, storedKey) || !bytes.Equal(iv, storedIV) {
		t.Error("keyring lookup returned wrong key/IV")
	}

	// Explicit work ID.
	if _, _, err := a.ResolveKey("renamed.dlst", "RJ123456", "", ""); err != nil {
		t.Errorf("ResolveKey() with explicit work ID error = %v", err)
	}
}

func TestApp_ResolveKey_Missing(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	if _, _, err := a.ResolveKey("no id here.dlst", "", "", ""); err == nil {
		t.Error("ResolveKey() without key or work ID did not fail")
	}
	if _, _, err := a.ResolveKey("RJ999999.dlst", "", "", ""); err == nil {
		t.Error("ResolveKey() for unstored work did not fail")
	}
	if _, _, err := a.ResolveKey("x.dlst", "", "not hex", ""); err == nil {
		t.Error("ResolveKey() accepted malformed hex")
	}
}
