package publish

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"
)

// spacesFolder is the key prefix for all published player images.
const spacesFolder = "image_pipeline"

const defaultRegion = "sgp1"

// SpacesConfig configures the DigitalOcean Spaces (S3-compatible) publisher.
type SpacesConfig struct {
	// OriginEndpoint is the bucket origin URL, e.g.
	// https://fantasyfootball.sgp1.digitaloceanspaces.com — the region is
	// parsed out of its hostname.
	OriginEndpoint string
	// CDNEndpoint prefixes the returned result URLs.
	CDNEndpoint string
	Bucket      string
	AccessKey   string
	SecretKey   string
}

// SpacesPublisher uploads generated images to an S3-compatible bucket and
// returns their CDN URL.
type SpacesPublisher struct {
	client      S3API
	bucket      string
	cdnEndpoint string
	fs          afero.Fs
}

// NewSpacesPublisher builds an S3 client against the regional Spaces
// endpoint derived from cfg.OriginEndpoint.
func NewSpacesPublisher(ctx context.Context, cfg SpacesConfig, fs afero.Fs) (*SpacesPublisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("spaces bucket must not be empty")
	}

	region := RegionFromOrigin(cfg.OriginEndpoint)
	endpoint := fmt.Sprintf("https://%s.digitaloceanspaces.com", region)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &SpacesPublisher{
		client:      client,
		bucket:      cfg.Bucket,
		cdnEndpoint: strings.TrimRight(cfg.CDNEndpoint, "/"),
		fs:          fs,
	}, nil
}

// NewSpacesPublisherWithClient wires a custom S3 client; used by tests.
func NewSpacesPublisherWithClient(client S3API, bucket, cdnEndpoint string, fs afero.Fs) *SpacesPublisher {
	return &SpacesPublisher{
		client:      client,
		bucket:      bucket,
		cdnEndpoint: strings.TrimRight(cdnEndpoint, "/"),
		fs:          fs,
	}
}

// Publish uploads localPath as <spacesFolder>/<playerID>.png with a
// public-read ACL and returns the CDN URL. The local file is left intact.
func (p *SpacesPublisher) Publish(ctx context.Context, localPath string, playerID int64) (string, error) {
	f, err := p.fs.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%d.png", spacesFolder, playerID)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("upload player %d: %w", playerID, err)
	}

	return p.cdnEndpoint + "/" + key, nil
}

// RegionFromOrigin extracts the region segment from a Spaces origin
// endpoint hostname: fantasyfootball.sgp1.digitaloceanspaces.com → sgp1.
// Falls back to defaultRegion when the hostname does not parse.
func RegionFromOrigin(originEndpoint string) string {
	u, err := url.Parse(originEndpoint)
	if err != nil {
		return defaultRegion
	}
	parts := strings.Split(u.Hostname(), ".")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return defaultRegion
}
