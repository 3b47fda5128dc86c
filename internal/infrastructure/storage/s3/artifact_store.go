package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dreschagin/anomaly-engine/internal/application/port"
	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

// artifactDocument — формат артефакта в хранилище: параметры scaler'а
// и чувствительность модели одним JSON-объектом на монитор.
type artifactDocument struct {
	MonitorID    string    `json:"monitor_id"`
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Valid        bool      `json:"valid"`
	FeatureNames []string  `json:"feature_names"`
	Centers      []float64 `json:"centers"`
	Scales       []float64 `json:"scales"`
	Sensitivity  float64   `json:"sensitivity"`
}

// ArtifactStore implements port.ArtifactStore on top of S3-compatible storage
type ArtifactStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

func NewArtifactStore(ctx context.Context, cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, fmt.Errorf("s3 access key id and secret are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "ru-central1"
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://storage.yandexcloud.net"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "models"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.BaseEndpoint = &cfg.Endpoint
		options.UsePathStyle = cfg.UsePathStyle
	})

	return &ArtifactStore{
		client:    client,
		bucket:    strings.TrimSpace(cfg.Bucket),
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

// Get загружает и разбирает артефакт монитора
func (s *ArtifactStore) Get(ctx context.Context, monitorID string) (*entity.ModelArtifact, error) {
	key := s.objectKey(monitorID)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, port.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("get object %s failed: %w", key, err)
	}
	defer output.Body.Close()

	body, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s failed: %w", key, err)
	}

	return unmarshalArtifact(body)
}

// Put сериализует и сохраняет артефакт монитора
func (s *ArtifactStore) Put(ctx context.Context, artifact *entity.ModelArtifact) error {
	body, err := marshalArtifact(artifact)
	if err != nil {
		return err
	}

	key := s.objectKey(artifact.MonitorID())
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s failed: %w", key, err)
	}
	return nil
}

// Exists проверяет наличие артефакта HEAD-запросом
func (s *ArtifactStore) Exists(ctx context.Context, monitorID string) (bool, error) {
	key := s.objectKey(monitorID)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s failed: %w", key, err)
	}
	return true, nil
}

func (s *ArtifactStore) objectKey(monitorID string) string {
	return fmt.Sprintf("%s/%s/artifact.json", s.keyPrefix, monitorID)
}

func marshalArtifact(artifact *entity.ModelArtifact) ([]byte, error) {
	centers, scales := artifact.ScalerParams()
	doc := artifactDocument{
		MonitorID:    artifact.MonitorID(),
		Version:      artifact.Version(),
		TrainedAt:    artifact.TrainedAt().UTC(),
		Valid:        artifact.IsValid(),
		FeatureNames: artifact.FeatureNames(),
		Centers:      centers,
		Scales:       scales,
		Sensitivity:  artifact.Sensitivity(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return body, nil
}

func unmarshalArtifact(body []byte) (*entity.ModelArtifact, error) {
	var doc artifactDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}

	artifact, err := entity.NewModelArtifact(
		doc.MonitorID,
		doc.Version,
		doc.TrainedAt,
		doc.Valid,
		doc.FeatureNames,
		doc.Centers,
		doc.Scales,
		doc.Sensitivity,
	)
	if err != nil {
		return nil, fmt.Errorf("stored artifact is inconsistent: %w", err)
	}
	return artifact, nil
}
