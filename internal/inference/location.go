package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"
)

// Fetcher resolves a model location into the serialized graph bytes.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// LocationFetcher reads models from local paths, file://, http(s):// and
// gs:// locations.
type LocationFetcher struct {
	// HTTPClient is used for http(s) locations. Defaults to a client with a
	// one minute timeout.
	HTTPClient *http.Client

	// NewGCSClient creates the client used for gs:// locations.
	// Defaults to storage.NewClient.
	NewGCSClient func(ctx context.Context) (*storage.Client, error)
}

var _ Fetcher = (*LocationFetcher)(nil)

// Fetch returns the bytes stored at location.
func (f *LocationFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("empty model location")
	}

	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		// Plain paths, including Windows drive letters.
		return f.fetchFile(ctx, location)
	}

	switch u.Scheme {
	case "file":
		return f.fetchFile(ctx, u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, location)
	case "gs":
		return f.fetchGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("unsupported model location scheme %q", u.Scheme)
	}
}

func (f *LocationFetcher) fetchFile(ctx context.Context, path string) ([]byte, error) {
	log := klog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	log.V(2).Info("read model file", "path", path, "bytes", len(data))
	return data, nil
}

func (f *LocationFetcher) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	log := klog.FromContext(ctx)

	client := f.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	startedAt := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading model %q: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading model body: %w", err)
	}

	log.Info("downloaded model", "url", location, "bytes", len(data), "duration", time.Since(startedAt))
	return data, nil
}

func (f *LocationFetcher) fetchGCS(ctx context.Context, bucket, object string) ([]byte, error) {
	log := klog.FromContext(ctx)

	if bucket == "" || object == "" {
		return nil, fmt.Errorf("invalid gs:// location %q", "gs://"+bucket+"/"+object)
	}
	gcsURL := "gs://" + bucket + "/" + object

	newClient := f.NewGCSClient
	if newClient == nil {
		newClient = func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		}
	}

	client, err := newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	startedAt := time.Now()
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("model %q not found: %w", gcsURL, err)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("downloading from GCS: %w", err)
	}

	log.Info("downloaded model from GCS", "url", gcsURL, "bytes", len(data), "duration", time.Since(startedAt))
	return data, nil
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, location string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}
