package s3infra

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReceiptArchive keeps the raw receipt payloads clients submit so support can
// inspect what the store actually returned.
type ReceiptArchive struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// NewClient creates an S3 client. A non-empty endpoint (LocalStack) overrides
// the service URL and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

func NewReceiptArchive(client *s3.Client, bucket string) *ReceiptArchive {
	return &ReceiptArchive{client: client, bucket: bucket, now: time.Now}
}

// Archive stores payload under receipts/<platform>/<user>/<date>/<txn>.json and
// returns the object URI.
func (a *ReceiptArchive) Archive(ctx context.Context, platform, userID, transactionID string, payload []byte) (string, error) {
	key := path.Join("receipts", platform, userID, a.now().UTC().Format("2006-01-02"), transactionID+".json")
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(payload),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"user-id":        userID,
			"transaction-id": transactionID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
