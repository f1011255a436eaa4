package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jakechorley/helpboard/pkg/core/model"
)

// ImageUploader stores an image and returns its object key and public URL
type ImageUploader interface {
	UploadImage(ctx context.Context, userID string, img model.Image) (key string, url string, err error)
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Images validates and uploads task images
type Images struct {
	uploader ImageUploader
	maxBytes int64
}

func NewImages(uploader ImageUploader, maxBytes int64) *Images {
	return &Images{uploader: uploader, maxBytes: maxBytes}
}

// Validate checks the content type and size without contacting storage
func (i *Images) Validate(field string, img *model.Image) error {
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(img.ContentType, ";", 2)[0]))
	switch {
	case !allowedImageTypes[contentType]:
		return fieldError(field, "must be a JPEG, PNG, WebP or GIF image")
	case img.Size <= 0:
		return fieldError(field, "is empty")
	case img.Size > i.maxBytes:
		return fieldError(field, fmt.Sprintf("must be at most %d bytes", i.maxBytes))
	}
	img.ContentType = contentType
	return nil
}

func (i *Images) upload(ctx context.Context, userID string, img model.Image) (string, string, error) {
	key, url, err := i.uploader.UploadImage(ctx, userID, img)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, url, nil
}
