package buildstate

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Stores are the clients a backend may draw on. Only the ones the chosen
// backend needs must be set.
type Stores struct {
	Redis       *redis.Client
	DB          *sql.DB
	Dynamo      DynamoAPI
	DynamoTable string
}

// Open returns the state repository and order index for backend.
func Open(backend string, s Stores) (Repository, OrderIndex, error) {
	switch backend {
	case BackendRedis:
		if s.Redis == nil {
			return nil, nil, fmt.Errorf("state backend %q needs a redis client", backend)
		}
		return NewRedisRepository(s.Redis), NewRedisOrderIndex(s.Redis), nil
	case BackendPostgres:
		if s.DB == nil {
			return nil, nil, fmt.Errorf("state backend %q needs a database", backend)
		}
		return NewPostgresRepository(s.DB), NewPostgresOrderIndex(s.DB), nil
	case BackendDynamoDB:
		if s.Dynamo == nil || s.DynamoTable == "" {
			return nil, nil, fmt.Errorf("state backend %q needs a dynamodb client and table", backend)
		}
		return NewDynamoRepository(s.Dynamo, s.DynamoTable), NewDynamoOrderIndex(s.Dynamo, s.DynamoTable), nil
	case BackendMemory, "":
		return NewMemoryRepository(), NewMemoryOrderIndex(), nil
	}
	return nil, nil, fmt.Errorf("unknown state backend %q", backend)
}
