package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/autopost/configs"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Service stores post images in a Cloudflare R2 bucket and hands back
// their public URL.
type R2Service struct {
	config config.R2
	client objectPutter
}

func NewR2Service(ctx context.Context, cfg config.Config) (*R2Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2.AccountID))
	})
	return newR2Service(cfg.R2, client), nil
}

func newR2Service(cfg config.R2, client objectPutter) *R2Service {
	return &R2Service{config: cfg, client: client}
}

// UploadImage stores data under a random key. The extension and, when
// contentType is empty, the content type come from the sniffed bytes.
func (r *R2Service) UploadImage(ctx context.Context, data []byte, contentType string) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", ErrInvalidImage
	}
	if contentType == "" {
		contentType = kind.MIME.Value
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("posts/%s.%s", id, kind.Extension)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return strings.TrimRight(r.config.PublicURL, "/") + "/" + key, nil
}
