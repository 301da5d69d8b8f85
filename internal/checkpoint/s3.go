package checkpoint

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

// S3Store keeps one JSON object per source under Prefix in Bucket.
// PutObject replaces an object as a whole, so readers never see a partial state.
type S3Store struct {
	Client s3iface.S3API
	Bucket string
	Prefix string
}

// NewS3Store creates an S3Store using the default AWS credential chain.
func NewS3Store(cfg config.CheckpointS3) (*S3Store, error) {
	awsConfig := aws.NewConfig()
	if cfg.Region != "" {
		awsConfig = awsConfig.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsConfig,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.NewPersistenceError("init", cfg.Bucket, err)
	}
	return &S3Store{Client: s3.New(sess), Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.Prefix, objectName(key))
}

func (s *S3Store) Load(ctx context.Context, key string) (State, error) {
	out, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if isNotFound(err) {
		return State{}, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("load", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewPersistenceError("load", key, err)
	}
	state, err := decodeState(data)
	if err != nil {
		return nil, errors.NewPersistenceError("load", key, err)
	}
	return state, nil
}

func (s *S3Store) Save(ctx context.Context, key string, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return errors.NewPersistenceError("save", key, err)
	}
	_, err = s.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.NewPersistenceError("save", key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return errors.NewPersistenceError("delete", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
