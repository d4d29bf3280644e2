package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationFetcher_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gesture.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx-bytes"), 0644))

	f := &LocationFetcher{}

	t.Run("plain path", func(t *testing.T) {
		data, err := f.Fetch(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "onnx-bytes", string(data))
	})

	t.Run("file URI", func(t *testing.T) {
		data, err := f.Fetch(context.Background(), "file://"+path)
		require.NoError(t, err)
		assert.Equal(t, "onnx-bytes", string(data))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), filepath.Join(dir, "missing.onnx"))
		assert.Error(t, err)
	})
}

func TestLocationFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gesture.onnx" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	f := &LocationFetcher{HTTPClient: srv.Client()}

	data, err := f.Fetch(context.Background(), srv.URL+"/models/gesture.onnx")
	require.NoError(t, err)
	assert.Equal(t, "remote-bytes", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/models/other.onnx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLocationFetcher_Invalid(t *testing.T) {
	f := &LocationFetcher{}

	tests := []struct {
		name     string
		location string
	}{
		{name: "empty", location: ""},
		{name: "unsupported scheme", location: "ftp://example.com/model.onnx"},
		{name: "gs without object", location: "gs://bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.location)
			assert.Error(t, err)
		})
	}
}
