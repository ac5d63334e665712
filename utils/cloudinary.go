package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"

	config "github.com/phillip/farewell-fund-go/config"
)

const (
	MaxReceiptBytes = 5 << 20
	receiptFolder   = "receipts"
)

var (
	ErrReceiptTooLarge = errors.New("receipt must be 5MB or smaller")
	ErrReceiptNotImage = errors.New("receipt must be an image")
	ErrUploadsDisabled = errors.New("receipt uploads are not configured")
)

// BlobStore persists a receipt image and returns a public URL for it.
type BlobStore interface {
	UploadReceipt(ctx context.Context, eventID string, body io.Reader) (string, error)
}

// ReadReceipt reads at most MaxReceiptBytes from r and sniffs its type.
func ReadReceipt(r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxReceiptBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read receipt: %w", err)
	}
	if len(data) > MaxReceiptBytes {
		return nil, "", ErrReceiptTooLarge
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, "", ErrReceiptNotImage
	}
	return data, mtype.String(), nil
}

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cfg config.CloudinaryConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %v", err)
	}
	return &Cloudinary{cld: cld}, nil
}

// UploadReceipt stores body under receipts/<eventID>.
func (c *Cloudinary) UploadReceipt(ctx context.Context, eventID string, body io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	uploadResp, err := c.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		Folder:       receiptFolder + "/" + eventID,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("upload error: %v", err)
	}
	if uploadResp.Error.Message != "" {
		return "", fmt.Errorf("upload error: %s", uploadResp.Error.Message)
	}
	return uploadResp.SecureURL, nil
}

// DisabledBlobStore rejects every upload; used when Cloudinary is not configured.
type DisabledBlobStore struct{}

func (DisabledBlobStore) UploadReceipt(context.Context, string, io.Reader) (string, error) {
	return "", ErrUploadsDisabled
}
