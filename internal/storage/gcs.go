package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Publisher uploads a finished draft archive and returns a reference URL.
type Publisher interface {
	Publish(ctx context.Context, localPath, objectName string) (string, error)
}

// GCSPublisher implements Publisher against Google Cloud Storage.
type GCSPublisher struct {
	client        *storage.Client
	bucket        string
	objectPrefix  string
	publicBaseURL string
}

// NewGCSPublisher creates a publisher. With an empty credentialsFile,
// application default credentials are used.
func NewGCSPublisher(ctx context.Context, bucket, objectPrefix, credentialsFile, publicBaseURL string) (*GCSPublisher, error) {
	var client *storage.Client
	var err error

	if credentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSPublisher{
		client:        client,
		bucket:        bucket,
		objectPrefix:  objectPrefix,
		publicBaseURL: publicBaseURL,
	}, nil
}

// Publish uploads a local file and returns its public URL when a base URL
// is configured, otherwise the object name.
func (p *GCSPublisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer f.Close()

	if p.objectPrefix != "" {
		objectName = p.objectPrefix + "/" + objectName
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute*5)
	defer cancel()

	wc := p.client.Bucket(p.bucket).Object(objectName).NewWriter(ctx)
	if _, err = io.Copy(wc, f); err != nil {
		return "", fmt.Errorf("failed to copy file to GCS: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}

	if p.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", p.publicBaseURL, objectName), nil
	}
	return objectName, nil
}

// Close closes the GCS client.
func (p *GCSPublisher) Close() error {
	return p.client.Close()
}
