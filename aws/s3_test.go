package aws

import (
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestObjectURL(t *testing.T) {
	s := &S3Store{Bucket: aws.String("notes-files"), region: "eu-west-1"}
	assert.Equal(t, "https://notes-files.s3.eu-west-1.amazonaws.com/1700-ch%201.pdf", s.ObjectURL("1700-ch 1.pdf"))

	s.pathStyle = true
	assert.Equal(t, "https://s3.eu-west-1.amazonaws.com/notes-files/1700-ch1.pdf", s.ObjectURL("1700-ch1.pdf"))

	s.endpoint = "http://localhost:9000"
	assert.Equal(t, "http://localhost:9000/notes-files/1700-ch1.pdf", s.ObjectURL("1700-ch1.pdf"))

	s.publicURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/1700-ch1.pdf", s.ObjectURL("1700-ch1.pdf"))
}

func TestR2Options(t *testing.T) {
	o := R2Options("abc123", Options{Bucket: "notes", Region: "eu-west-1"})

	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com", o.Endpoint)
	assert.Equal(t, "auto", o.Region)
	assert.Equal(t, "notes", o.Bucket)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchBucket"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(io.EOF))
}

func TestCountingReader(t *testing.T) {
	c := &countingReader{r: strings.NewReader("hello")}

	b, err := io.ReadAll(c)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.Equal(t, int64(5), c.n)
}
