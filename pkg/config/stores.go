package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/metrics"
	"github.com/marmos91/dittofiles/pkg/store/content"
	contentfs "github.com/marmos91/dittofiles/pkg/store/content/fs"
	contentmemory "github.com/marmos91/dittofiles/pkg/store/content/memory"
	contents3 "github.com/marmos91/dittofiles/pkg/store/content/s3"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
	"github.com/marmos91/dittofiles/pkg/store/metadata/badger"
	metadatamemory "github.com/marmos91/dittofiles/pkg/store/metadata/memory"
	"github.com/marmos91/dittofiles/pkg/store/metadata/postgres"
)

// decodeOptions decodes a store option map into out, accepting duration
// strings such as "5s".
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateObjectStore creates an object store based on configuration.
//
// Supported types:
//   - "filesystem": one file per key under a base directory
//   - "memory": in-memory storage, lost on restart
//   - "s3": Amazon S3 or any compatible service
//
// s3Metrics is only used by the s3 backend and may be nil.
func CreateObjectStore(ctx context.Context, cfg *ContentConfig, s3Metrics contents3.S3Metrics) (content.ObjectStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemObjectStore(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryObjectStore(ctx, cfg.Memory)
	case "s3":
		return createS3ObjectStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q (supported: filesystem, memory, s3)", cfg.Type)
	}
}

func createFilesystemObjectStore(ctx context.Context, options map[string]any) (content.ObjectStore, error) {
	type FilesystemObjectStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentfs.NewFSObjectStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	logger.Info("Filesystem content store initialized: path=%s", storeCfg.Path)
	return store, nil
}

func createMemoryObjectStore(ctx context.Context, options map[string]any) (content.ObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type MemoryObjectStoreConfig struct {
		PartSize int64 `mapstructure:"part_size"`
	}

	var storeCfg MemoryObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory content store config: %w", err)
	}

	var opts []contentmemory.Option
	if storeCfg.PartSize > 0 {
		opts = append(opts, contentmemory.WithPartSize(storeCfg.PartSize))
	}

	logger.Warn("Memory content store in use: content is lost on restart")
	return contentmemory.NewMemoryObjectStore(opts...), nil
}

// s3StoreConfig holds the options of the s3 content store.
type s3StoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	PartSize        int64  `mapstructure:"part_size"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

func createS3ObjectStore(ctx context.Context, options map[string]any, m contents3.S3Metrics) (content.ObjectStore, error) {
	var storeCfg s3StoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := contents3.NewS3ObjectStore(ctx, contents3.S3ObjectStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		PartSize:  storeCfg.PartSize,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// newS3Client builds an S3 client from static options, falling back to the
// default credential chain when no keys are given.
func newS3Client(ctx context.Context, storeCfg s3StoreConfig) (*awss3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeCfg.AccessKeyID, storeCfg.SecretAccessKey, ""),
		))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			// MinIO and Localstack need path-style addressing
			o.UsePathStyle = true
		}
		if storeCfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// CreateMetadataStore creates a metadata store based on configuration and
// wraps it with metrics when collection is enabled.
//
// Supported types:
//   - "memory": in-memory storage, lost on restart
//   - "badger": BadgerDB storage, persistent
//   - "postgres": PostgreSQL through a pgx pool
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (metadata.Store, error) {
	var (
		store metadata.Store
		err   error
	)

	switch cfg.Type {
	case "memory":
		store, err = createMemoryMetadataStore(ctx)
	case "badger":
		store, err = createBadgerMetadataStore(ctx, cfg.Badger)
	case "postgres":
		store, err = createPostgresMetadataStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q (supported: memory, badger, postgres)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return metrics.InstrumentMetadataStore(store, metrics.NewMetadataMetrics(cfg.Type)), nil
}

func createMemoryMetadataStore(ctx context.Context) (metadata.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Warn("Memory metadata store in use: records are lost on restart")
	return metadatamemory.NewMemoryMetadataStore(), nil
}

func createBadgerMetadataStore(ctx context.Context, options map[string]any) (metadata.Store, error) {
	var storeCfg badger.BadgerMetadataStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store options: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	store, err := badger.NewBadgerMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}

	logger.Info("Badger metadata store initialized: path=%s", storeCfg.DBPath)
	return store, nil
}

func createPostgresMetadataStore(ctx context.Context, options map[string]any) (metadata.Store, error) {
	storeCfg := postgres.PostgresMetadataStoreConfig{
		ConnectTimeout: 10 * time.Second,
		Migrate:        true,
	}
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode postgres metadata store options: %w", err)
	}

	if storeCfg.DSN == "" {
		return nil, fmt.Errorf("postgres metadata store: dsn is required")
	}

	store, err := postgres.NewPostgresMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres metadata store: %w", err)
	}

	logger.Info("Postgres metadata store initialized (migrate=%v)", storeCfg.Migrate)
	return store, nil
}
