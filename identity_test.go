// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"testing"
)

func TestIdentity_Key(t *testing.T) {
	id := Identity{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Fill, Format: PNG}

	sum := sha256.Sum256([]byte("100-W-50-H-fill-M-png-F-/a/b.jpg-P"))
	if got, want := id.Key(), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Key() returned %q, want %q", got, want)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(id.Key()) {
		t.Errorf("Key() returned %q, want 64 lowercase hex characters", id.Key())
	}

	// equal identities have equal keys
	same := Identity{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Fill, Format: PNG}
	if id.Key() != same.Key() {
		t.Errorf("equal identities returned different keys")
	}

	// a change to any field changes the key
	variants := []Identity{
		{SourcePath: "/a/c.jpg", Width: 100, Height: 50, Mode: Fill, Format: PNG},
		{SourcePath: "/a/b.jpg", Width: 101, Height: 50, Mode: Fill, Format: PNG},
		{SourcePath: "/a/b.jpg", Width: 100, Height: 51, Mode: Fill, Format: PNG},
		{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Uniform, Format: PNG},
		{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Fill, Format: JPEG},
		{SourcePath: "/a/b.jpg", Width: 50, Height: 100, Mode: Fill, Format: PNG},
	}
	seen := map[string]Identity{id.Key(): id}
	for _, v := range variants {
		k := v.Key()
		if prev, ok := seen[k]; ok {
			t.Errorf("identities %v and %v have the same key %q", prev, v, k)
		}
		seen[k] = v
	}
}

func TestIdentity_Filename(t *testing.T) {
	tests := []struct {
		format Format
		ext    string
	}{
		{JPEG, ".jpg"},
		{PNG, ".png"},
		{BMP, ".bmp"},
		{GIF, ".gif"},
	}
	for _, tt := range tests {
		id := Identity{SourcePath: "/x", Width: 1, Height: 1, Mode: Fill, Format: tt.format}
		if got, want := id.Filename(), id.Key()+tt.ext; got != want {
			t.Errorf("Filename() for %s returned %q, want %q", tt.format, got, want)
		}
	}
}

func TestNewIdentity(t *testing.T) {
	tests := []struct {
		path   string
		w, h   int
		mode   Mode
		format Format
		valid  bool
	}{
		{"/a.jpg", 1, 1, Fill, JPEG, true},
		{"a.jpg", 300, 193, UseHeight, GIF, true},
		{"", 1, 1, Fill, JPEG, false},
		{"/a.jpg", 0, 1, Fill, JPEG, false},
		{"/a.jpg", 1, -1, Fill, JPEG, false},
		{"/a.jpg", 1, 1, Mode("stretch"), JPEG, false},
		{"/a.jpg", 1, 1, Fill, Format("webp"), false},
		{"/a.jpg", 1, 1, "", JPEG, false},
	}

	for _, tt := range tests {
		_, err := NewIdentity(tt.path, tt.w, tt.h, tt.mode, tt.format)
		if tt.valid && err != nil {
			t.Errorf("NewIdentity(%q, %d, %d, %q, %q) returned error: %v", tt.path, tt.w, tt.h, tt.mode, tt.format, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("NewIdentity(%q, %d, %d, %q, %q) returned %v, want ErrInvalidRequest", tt.path, tt.w, tt.h, tt.mode, tt.format, err)
		}
	}
}

func TestFormatFromExt(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"/a.jpg", JPEG, true},
		{"/a.JPEG", JPEG, true},
		{"/a.png", PNG, true},
		{"/a.bmp", BMP, true},
		{"/a.gif", GIF, true},
		{"/a.webp", "", false},
		{"/a", "", false},
		{"/dir.png/a", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatFromExt(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FormatFromExt(%q) returned %q, %v, want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		input string
		want  Options
	}{
		{"", Options{}},
		{"x", Options{}},
		{"r", Options{}},
		{"0", Options{}},

		// size variations
		{"1x", Options{Width: 1}},
		{"x1", Options{Height: 1}},
		{"1x2", Options{Width: 1, Height: 2}},
		{"100", Options{Width: 100, Height: 100}},
		{"65535x1", Options{Width: 65535, Height: 1}},
		{"65536x1", Options{Height: 1}},
		{"-1x-2", Options{}},
		{"99999999999999999999", Options{}},

		// mode and format
		{"fill", Options{Mode: Fill}},
		{"uniformfill", Options{Mode: UniformFill}},
		{"jpg", Options{Format: JPEG}},
		{"jpeg", Options{Format: JPEG}},
		{"bmp", Options{Format: BMP}},

		// multiple options, in any order, last one wins
		{"1x2,usewidth,png", Options{Width: 1, Height: 2, Mode: UseWidth, Format: PNG}},
		{"gif,useheight,10x20", Options{Width: 10, Height: 20, Mode: UseHeight, Format: GIF}},
		{"1x1,2x2,fill,uniform", Options{Width: 2, Height: 2, Mode: Uniform}},

		// unknown options are ignored
		{"1x2,q80,sc0ffee,png", Options{Width: 1, Height: 2, Format: PNG}},
	}

	for _, tt := range tests {
		if got, want := ParseOptions(tt.input), tt.want; got != want {
			t.Errorf("ParseOptions(%q) returned %#v, want %#v", tt.input, got, want)
		}
	}
}

func TestOptions_String(t *testing.T) {
	tests := []struct {
		Options Options
		String  string
	}{
		{Options{}, "0x0"},
		{Options{Width: 1, Height: 2, Mode: Fill}, "1x2,fill"},
		{Options{Width: 3, Height: 4, Mode: UseWidth, Format: GIF}, "3x4,usewidth,gif"},
	}

	for i, tt := range tests {
		if got, want := tt.Options.String(), tt.String; got != want {
			t.Errorf("%d. Options.String returned %v, want %v", i, got, want)
		}
	}
}

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		path string
		want Identity
	}{
		{"/100x50/a/b.jpg", Identity{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Uniform, Format: JPEG}},
		{"/100x50,fill,png/a/b.jpg", Identity{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Fill, Format: PNG}},
		{"/64/icon.gif", Identity{SourcePath: "/icon.gif", Width: 64, Height: 64, Mode: Uniform, Format: GIF}},

		// density suffix
		{"/50x150/img@2x.png", Identity{SourcePath: "/img.png", Width: 100, Height: 300, Mode: Uniform, Format: PNG}},
		{"/50x150,bmp/img@3x", Identity{SourcePath: "/img", Width: 150, Height: 450, Mode: Uniform, Format: BMP}},
		{"/65535x1,fill,png/a@2x.png", Identity{SourcePath: "/a.png", Width: 131070, Height: 2, Mode: Fill, Format: PNG}},
	}

	for _, tt := range tests {
		got, err := ParseIdentity(tt.path)
		if err != nil {
			t.Errorf("ParseIdentity(%q) returned error: %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIdentity(%q) returned %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseIdentity_Invalid(t *testing.T) {
	tests := []string{
		"",
		"/",
		"/100x100",
		"/100x100/",
		"/fill/a.jpg",      // no size
		"/100x100/a.webp",  // unknown format
		"/100x100/a",       // no format
		"/0x100,png/a.jpg", // zero width
		"/4611686018427387905x4611686018427387905,fill,png/a@4x.png",
		"/65536x100,png/a.jpg",
		"/-100x100,png/a.jpg",
	}

	for _, path := range tests {
		if id, err := ParseIdentity(path); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("ParseIdentity(%q) returned %v, %v, want ErrInvalidRequest", path, id, err)
		}
	}
}

func TestIdentity_Path(t *testing.T) {
	ids := []Identity{
		{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: Fill, Format: PNG},
		{SourcePath: "/c.gif", Width: 1, Height: 2, Mode: UniformFill, Format: GIF},
		{SourcePath: "/d", Width: 3, Height: 4, Mode: UseWidth, Format: BMP},
	}
	for _, id := range ids {
		p := id.Path()
		got, err := ParseIdentity(p)
		if err != nil {
			t.Errorf("ParseIdentity(%q) returned error: %v", p, err)
			continue
		}
		if got != id {
			t.Errorf("ParseIdentity(%q) returned %v, want %v", p, got, id)
		}
	}
}
