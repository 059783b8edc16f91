package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestValidateInputFlags(t *testing.T) {
	dir := t.TempDir()
	clip := touch(t, dir, "clip.MP4")
	photo := touch(t, dir, "photo.png")
	gif := touch(t, dir, "photo.gif")

	tests := []struct {
		name    string
		video   string
		image   string
		kind    images.MediaKind
		wantErr bool
	}{
		{name: "video", video: clip, kind: images.KindVideo},
		{name: "image", image: photo, kind: images.KindImage},
		{name: "both", video: clip, image: photo, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "missing", image: filepath.Join(dir, "absent.jpg"), wantErr: true},
		{name: "unsupported", image: gif, wantErr: true},
		{name: "image as video", video: photo, wantErr: true},
		{name: "directory", image: dir, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := validateInputFlags(tt.video, tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, in.Kind)
		})
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/data/clip_annotated.mp4", outputPath(&InputConfig{Kind: images.KindVideo, Path: "/data/clip.mov"}))
	assert.Equal(t, "shot_annotated.jpg", outputPath(&InputConfig{Kind: images.KindImage, Path: "shot.png"}))
}
