// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockS3 struct {
	objects map[string][]byte
}

func (m *mockS3) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(input.Bucket)+"/"+aws.ToString(input.Key)] = data
	return &manager.UploadOutput{}, nil
}

func (m *mockS3) Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error) {
	data, ok := m.objects[aws.ToString(input.Bucket)+"/"+aws.ToString(input.Key)]
	if !ok {
		return 0, &types.NoSuchKey{}
	}
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func newTestS3StorageService(config S3StorageServiceConfig) (*S3StorageService, *mockS3) {
	mock := &mockS3{objects: make(map[string][]byte)}
	return &S3StorageService{
		bucket:       config.Bucket,
		objectPrefix: config.ObjectPrefix,
		uploader:     mock,
		downloader:   mock,
	}, mock
}

func TestS3StorageService(t *testing.T) {
	ctx := context.Background()
	s3Service, mock := newTestS3StorageService(S3StorageServiceConfig{Enable: true, Bucket: "payloads", ObjectPrefix: "app/"})

	val1 := []byte("The first value")
	if _, err := s3Service.GetByHash(ctx, HashPayload(val1)); !errors.Is(err, ErrNotFound) {
		Fail(t, "expected ErrNotFound, got", err)
	}
	Require(t, s3Service.Put(ctx, val1))
	if _, ok := mock.objects["payloads/app/"+HashPayload(val1).Hex()]; !ok {
		Fail(t, "object stored under an unexpected name", mock.objects)
	}
	got, err := s3Service.GetByHash(ctx, HashPayload(val1))
	Require(t, err)
	if !bytes.Equal(got, val1) {
		Fail(t, "got", got, "want", val1)
	}
	if _, err := s3Service.GetByHash(ctx, HashPayload(append(val1, 0))); !errors.Is(err, ErrNotFound) {
		Fail(t, "expected ErrNotFound, got", err)
	}
}

func TestNewS3StorageService(t *testing.T) {
	ctx := context.Background()
	if _, err := NewS3StorageService(ctx, S3StorageServiceConfig{Enable: true, Region: "us-east-1"}); err == nil {
		Fail(t, "created S3 storage without a bucket")
	}
	s3Service, err := NewS3StorageService(ctx, S3StorageServiceConfig{
		Enable:    true,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "payloads",
		Region:    "us-east-1",
	})
	Require(t, err)
	if s3Service.String() != "S3StorageService(payloads/)" {
		Fail(t, "unexpected description", s3Service.String())
	}
}
