package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// CloudinaryConfig contains credentials required to talk to Cloudinary.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Cloudinary stores artifacts as raw assets so bytes round-trip untouched.
type Cloudinary struct {
	client *cloudinary.Cloudinary
	http   *resty.Client
	folder string
	logger zerolog.Logger
}

// NewCloudinary constructs a Cloudinary backed store.
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
		http:   resty.New().SetTimeout(30 * time.Second).SetRetryCount(2),
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "storage.cloudinary").Logger(),
	}, nil
}

func (c *Cloudinary) publicID(rel string) string {
	if c.folder == "" {
		return rel
	}
	return c.folder + "/" + rel
}

// Write implements Store and returns the asset's secure URL.
func (c *Cloudinary) Write(ctx context.Context, key Key, data []byte) (string, error) {
	if err := key.validate(); err != nil {
		return "", err
	}

	params := uploader.UploadParams{
		PublicID:     c.publicID(key.Path()),
		ResourceType: string(api.File),
		Overwrite:    api.Bool(true),
	}

	result, err := c.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	c.logger.Debug().Str("public_id", result.PublicID).Int("bytes", len(data)).Msg("artifact uploaded to cloudinary")

	return result.SecureURL, nil
}

// Read implements Store by downloading the secure URL.
func (c *Cloudinary) Read(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.IsError():
		return nil, fmt.Errorf("download artifact: unexpected status %d", resp.StatusCode())
	}

	return resp.Body(), nil
}

// DeletePrefix implements Store.
func (c *Cloudinary) DeletePrefix(ctx context.Context, prefix string) error {
	params := admin.DeleteAssetsByPrefixParams{
		AssetType: api.File,
		Prefix:    api.CldAPIArray{c.publicID(strings.TrimSuffix(prefix, "/") + "/")},
	}

	result, err := c.client.Admin.DeleteAssetsByPrefix(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to delete assets: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to delete assets: %s", result.Error.Message)
	}

	c.logger.Debug().Str("prefix", prefix).Int("deleted", len(result.Deleted)).Msg("artifacts deleted from cloudinary")
	return nil
}
