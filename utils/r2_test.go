package utils

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestR2ArchiverUpload(t *testing.T) {
	fake := &fakePutter{}
	a := &R2Archiver{Client: fake, Bucket: "audit"}

	require.NoError(t, a.Upload(context.Background(), "ledger/2024-01-01.jsonl", []byte("{}\n"), "application/x-ndjson"))

	assert.Equal(t, "audit", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "ledger/2024-01-01.jsonl", aws.ToString(fake.input.Key))
	assert.Equal(t, "application/x-ndjson", aws.ToString(fake.input.ContentType))
	assert.Equal(t, "{}\n", fake.body)
}
