package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/model"
)

// S3Config points the publisher at an S3-compatible bucket. ServiceURL is
// optional and selects a custom endpoint such as MinIO.
type S3Config struct {
	ServiceURL string
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
}

var ErrNoBucket = errors.New("report archive: no bucket configured")

// Publisher archives rendered reports under reports/<userId>/<id>.<ext>.
type Publisher struct {
	client *s3.Client
	bucket string
	logger logging.Logger
	now    func() time.Time
}

func NewPublisher(ctx context.Context, cfg S3Config, logger logging.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if logger == nil {
		logger = logging.Nop()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			}, nil
		})),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.ServiceURL != "" {
			o.BaseEndpoint = aws.String(cfg.ServiceURL)
		}
	})

	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With(logging.Field{Key: "component", Value: "report-archive"}),
		now:    time.Now,
	}, nil
}

// Key returns the object key for a record's report in format f.
func Key(userID, analysisID string, f Format) string {
	return "reports/" + userID + "/" + analysisID + "." + string(f)
}

// Publish renders rec in format f and uploads it. It returns the object key.
func (p *Publisher) Publish(ctx context.Context, rec *model.AnalysisRecord, f Format) (string, error) {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return "", errors.New("report archive: record without id or owner")
	}
	var buf bytes.Buffer
	w, err := NewWriter(f, &buf)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(Build(rec, p.now())); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	key := Key(rec.UserID, rec.ID, f)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(f.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	p.logger.Info("report archived", logging.Field{Key: "key", Value: key})
	return key, nil
}

// Remove deletes every archived format of a record's report. Missing
// objects are not an error.
func (p *Publisher) Remove(ctx context.Context, userID, analysisID string) error {
	var errs []error
	for _, f := range []Format{FormatMarkdown, FormatJSON} {
		key := Key(userID, analysisID, f)
		_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
