package statement

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	stmtDefaultBucket = "bizbooks"
	stmtPrefix        = "statements/"
	stmtDefaultRegion = "ap-southeast-1"
)

func stmtBucket() string {
	if b := strings.TrimSpace(os.Getenv("STMT_S3_BUCKET")); b != "" {
		return b
	}
	return stmtDefaultBucket
}

func stmtRegion() string {
	if r := strings.TrimSpace(os.Getenv("STMT_S3_REGION")); r != "" {
		return r
	}
	return stmtDefaultRegion
}

// s3ArchiveEnabled reads STMT_S3_ENABLED. Defaults to false: a local
// bookkeeping install has no bucket.
func s3ArchiveEnabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("STMT_S3_ENABLED")))
	return v == "1" || v == "true" || v == "yes"
}

func sanitizePathSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return replacer.Replace(s)
}

func archiveKey(batchID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s%s/%s%s", stmtPrefix, sanitizePathSegment(batchID), "original", ext)
}

func detectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}

// S3Archiver keeps the original uploaded file in object storage so a batch
// can be audited after the fact. Disabled installs get a no-op.
type S3Archiver struct{}

func NewS3Archiver() *S3Archiver {
	if !s3ArchiveEnabled() {
		return nil
	}
	return &S3Archiver{}
}

// Archive uploads in the background; archival is best effort and never
// blocks or fails the import.
func (a *S3Archiver) Archive(_ context.Context, batchID, fileName string, data []byte) {
	if a == nil {
		return
	}
	key := archiveKey(batchID, fileName)
	body := make([]byte, len(data))
	copy(body, data)
	go func() {
		ctx := context.Background()
		if err := putObject(ctx, key, body, detectContentType(body)); err != nil {
			log.Printf("[STATEMENT-ARCHIVE] batch %s: %v", batchID, err)
			return
		}
		log.Printf("[STATEMENT-ARCHIVE] batch %s: stored %s (%d bytes)", batchID, key, len(body))
	}()
}

func putObject(ctx context.Context, key string, body []byte, contentType string) error {
	bucket := stmtBucket()
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(stmtRegion()))
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload to s3 (bucket %s, key %s): %w", bucket, key, err)
	}
	return nil
}
