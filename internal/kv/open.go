package kv

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/waitlist-engine/internal/config"
)

// Open builds the backend named by cfg.Type. redisClient is required for
// "redis"; the other backends ignore it.
func Open(ctx context.Context, cfg config.StoreConfig, redisClient *redis.Client) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		log.Println("[Store] Using in-memory store (data is lost on restart)")
		return NewMemoryStore(), nil

	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("store type redis requires redis.url")
		}
		return NewRedisStore(redisClient), nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("store type postgres requires DATABASE_URL")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		return NewPostgresStore(db, cfg.Table), nil

	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("store type dynamodb requires dynamodb_table")
		}
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if profile := cfg.GetAWSProfile(); profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable), nil

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
