package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	config "github.com/maheshrc27/autopost/configs"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestR2_UploadImage(t *testing.T) {
	putter := &fakePutter{}
	r2 := newR2Service(config.R2{BucketName: "media", PublicURL: "https://media.example.com/"}, putter)

	url, err := r2.UploadImage(context.Background(), pngBytes, "")
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if len(putter.inputs) != 1 {
		t.Fatalf("PutObject calls = %d", len(putter.inputs))
	}

	in := putter.inputs[0]
	key := aws.ToString(in.Key)
	if aws.ToString(in.Bucket) != "media" || !strings.HasPrefix(key, "posts/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("bucket/key = %s/%s", aws.ToString(in.Bucket), key)
	}
	if aws.ToString(in.ContentType) != "image/png" {
		t.Errorf("content type = %s", aws.ToString(in.ContentType))
	}
	if url != "https://media.example.com/"+key {
		t.Errorf("url = %s", url)
	}
	if string(putter.bodies[0]) != string(pngBytes) {
		t.Error("uploaded body differs")
	}
}

func TestR2_UploadImageErrors(t *testing.T) {
	r2 := newR2Service(config.R2{BucketName: "media", PublicURL: "https://media.example.com"}, &fakePutter{})
	if _, err := r2.UploadImage(context.Background(), []byte("not an image"), ""); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("err = %v, want ErrInvalidImage", err)
	}

	boom := errors.New("bucket gone")
	r2 = newR2Service(config.R2{BucketName: "media"}, &fakePutter{err: boom})
	if _, err := r2.UploadImage(context.Background(), pngBytes, "image/png"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
