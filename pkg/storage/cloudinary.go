package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// CloudinaryConfig contains credentials required to talk to Cloudinary.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Cloudinary implements BlobStorage on top of the Cloudinary CDN. References
// are the delivery URLs returned at upload time.
type Cloudinary struct {
	client *cloudinary.Cloudinary
	folder string
	http   *http.Client
	logger zerolog.Logger
}

// NewCloudinary constructs a Cloudinary-backed blob store.
func NewCloudinary(cfg CloudinaryConfig, logger zerolog.Logger) (*Cloudinary, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Cloudinary{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		http:   http.DefaultClient,
		logger: logger.With().Str("component", "cloudinary_storage").Logger(),
	}, nil
}

// Put uploads the blob and returns its secure delivery URL.
func (c *Cloudinary) Put(ctx context.Context, name string, reader io.Reader) (string, error) {
	normalized, err := normalizeRef(name)
	if err != nil {
		return "", err
	}

	result, err := c.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       c.folder,
		PublicID:     publicIDForName(normalized),
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}

	c.logger.Info().Str("public_id", result.PublicID).Msg("blob uploaded to cloudinary")
	return result.SecureURL, nil
}

// Get fetches the blob bytes from the delivery URL.
func (c *Cloudinary) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid blob reference: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d fetching asset", resp.StatusCode)
	}

	return resp.Body, nil
}

// Delete destroys the asset behind the delivery URL.
func (c *Cloudinary) Delete(ctx context.Context, ref string) error {
	publicID, ok := publicIDFromURL(ref)
	if !ok {
		return ErrNotFound
	}

	result, err := c.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("failed to destroy asset: %w", err)
	}
	if result.Result == "not found" {
		return ErrNotFound
	}

	return nil
}

// publicIDForName keeps the uuid prefix so names stay collision resistant.
func publicIDForName(name string) string {
	base := path.Base(name)
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
}

// publicIDFromURL recovers the public id from a delivery URL. The URL shape is
// .../upload/v<version>/<folder>/<public_id>.<ext>.
func publicIDFromURL(ref string) (string, bool) {
	marker := "/upload/"
	idx := strings.Index(ref, marker)
	if idx < 0 {
		return "", false
	}

	rest := ref[idx+len(marker):]
	segments := strings.Split(rest, "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "v") {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "", false
	}

	last := segments[len(segments)-1]
	segments[len(segments)-1] = strings.TrimSuffix(last, path.Ext(last))
	return strings.Join(segments, "/"), true
}
