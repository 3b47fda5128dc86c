package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dreschagin/anomaly-engine/internal/application/port"
)

const (
	defaultListLimit = 24
	maxListLimit     = 100

	attrPK           = "PK"
	attrSK           = "SK"
	attrMonitorID    = "monitor_id"
	attrVersion      = "version"
	attrTrainedAt    = "trained_at"
	attrFeatureNames = "feature_names"
	attrSampleCount  = "sample_count"
	attrStorageKey   = "storage_key"
)

var monitorIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

// ModelRegistry реализует port.ModelRegistry поверх DynamoDB.
// Одна запись на обученную версию: PK — монитор, SK — время обучения,
// свежие версии читаются первыми.
type ModelRegistry struct {
	client      *dynamodb.Client
	tableName   string
	strongReads bool
}

type registryCursor struct {
	MonitorID string            `json:"monitor_id"`
	Key       map[string]string `json:"key"`
}

func NewModelRegistry(ctx context.Context, cfg Config) (*ModelRegistry, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return &ModelRegistry{
		client:      client,
		tableName:   strings.TrimSpace(cfg.TableName),
		strongReads: cfg.StrongReads,
	}, nil
}

// PutRecord сохраняет запись об обученной версии модели
func (r *ModelRegistry) PutRecord(ctx context.Context, record port.ModelRecord) error {
	item, err := toItem(record)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put failed: %w", err)
	}
	return nil
}

// ListByMonitor возвращает записи монитора, свежие первыми
func (r *ModelRegistry) ListByMonitor(ctx context.Context, query port.ModelListQuery) (port.ModelListPage, error) {
	monitorID := strings.TrimSpace(query.MonitorID)
	if !monitorIDPattern.MatchString(monitorID) {
		return port.ModelListPage{}, fmt.Errorf("invalid monitor_id")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	keyCondition := "#pk = :pk"
	maxKeys := int32(limit)
	scanForward := false
	consistent := r.strongReads
	input := &dynamodb.QueryInput{
		TableName:                &r.tableName,
		Limit:                    &maxKeys,
		ScanIndexForward:         &scanForward,
		ConsistentRead:           &consistent,
		KeyConditionExpression:   &keyCondition,
		ExpressionAttributeNames: map[string]string{"#pk": attrPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: buildPK(monitorID)},
		},
	}

	if strings.TrimSpace(query.Cursor) != "" {
		exclusiveStartKey, err := decodeCursor(query.Cursor, monitorID)
		if err != nil {
			return port.ModelListPage{}, err
		}
		input.ExclusiveStartKey = exclusiveStartKey
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return port.ModelListPage{}, fmt.Errorf("dynamodb query failed: %w", err)
	}

	items := make([]port.ModelRecord, 0, len(output.Items))
	for _, raw := range output.Items {
		item, err := fromItem(raw)
		if err != nil {
			return port.ModelListPage{}, err
		}
		items = append(items, item)
	}

	nextCursor := ""
	if len(output.LastEvaluatedKey) > 0 {
		nextCursor, err = encodeCursor(output.LastEvaluatedKey, monitorID)
		if err != nil {
			return port.ModelListPage{}, err
		}
	}

	return port.ModelListPage{
		Items:      items,
		NextCursor: nextCursor,
	}, nil
}

func toItem(record port.ModelRecord) (map[string]types.AttributeValue, error) {
	monitorID := strings.TrimSpace(record.MonitorID)
	version := strings.TrimSpace(record.Version)
	if !monitorIDPattern.MatchString(monitorID) {
		return nil, fmt.Errorf("invalid monitor_id")
	}
	if version == "" {
		return nil, fmt.Errorf("version is required")
	}

	trainedAt := record.TrainedAt.UTC()
	if trainedAt.IsZero() {
		trainedAt = time.Now().UTC()
	}
	trainedAtMS := trainedAt.UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:        &types.AttributeValueMemberS{Value: buildPK(monitorID)},
		attrSK:        &types.AttributeValueMemberS{Value: buildSK(trainedAtMS, version)},
		attrMonitorID: &types.AttributeValueMemberS{Value: monitorID},
		attrVersion:   &types.AttributeValueMemberS{Value: version},
		attrTrainedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(trainedAtMS, 10)},
	}

	if len(record.FeatureNames) > 0 {
		names := make([]types.AttributeValue, len(record.FeatureNames))
		for i, name := range record.FeatureNames {
			names[i] = &types.AttributeValueMemberS{Value: name}
		}
		item[attrFeatureNames] = &types.AttributeValueMemberL{Value: names}
	}
	if record.SampleCount > 0 {
		item[attrSampleCount] = &types.AttributeValueMemberN{Value: strconv.Itoa(record.SampleCount)}
	}
	if storageKey := strings.TrimSpace(record.StorageKey); storageKey != "" {
		item[attrStorageKey] = &types.AttributeValueMemberS{Value: storageKey}
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (port.ModelRecord, error) {
	monitorID, err := attrString(item, attrMonitorID)
	if err != nil {
		return port.ModelRecord{}, err
	}
	version, err := attrString(item, attrVersion)
	if err != nil {
		return port.ModelRecord{}, err
	}
	trainedAtMS, err := attrInt64(item, attrTrainedAt)
	if err != nil {
		return port.ModelRecord{}, err
	}

	record := port.ModelRecord{
		MonitorID:   monitorID,
		Version:     version,
		TrainedAt:   time.UnixMilli(trainedAtMS).UTC(),
		SampleCount: int(optionalInt64(item, attrSampleCount)),
		StorageKey:  optionalString(item, attrStorageKey),
	}

	if raw, ok := item[attrFeatureNames]; ok {
		if names, ok := raw.(*types.AttributeValueMemberL); ok {
			for _, value := range names.Value {
				if s, ok := value.(*types.AttributeValueMemberS); ok {
					record.FeatureNames = append(record.FeatureNames, s.Value)
				}
			}
		}
	}

	return record, nil
}

func buildPK(monitorID string) string {
	return "MONITOR#" + monitorID
}

func buildSK(trainedAtMS int64, version string) string {
	return fmt.Sprintf("TS#%013d#VER#%s", trainedAtMS, version)
}

func encodeCursor(key map[string]types.AttributeValue, monitorID string) (string, error) {
	values := make(map[string]string, len(key))
	for attributeName, raw := range key {
		value, ok := raw.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("unsupported cursor attribute type for %s", attributeName)
		}
		values[attributeName] = value.Value
	}

	serialized, err := json.Marshal(registryCursor{MonitorID: monitorID, Key: values})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(serialized), nil
}

func decodeCursor(cursor, monitorID string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}

	var payload registryCursor
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	if payload.MonitorID != monitorID {
		return nil, fmt.Errorf("cursor does not match query filters")
	}

	key := make(map[string]types.AttributeValue, len(payload.Key))
	for attributeName, value := range payload.Key {
		if value == "" {
			return nil, fmt.Errorf("invalid cursor")
		}
		key[attributeName] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	raw, ok := item[name]
	if !ok {
		return ""
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	raw, ok := item[name]
	if !ok {
		return 0
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
