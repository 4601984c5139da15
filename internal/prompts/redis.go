package prompts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const chatTemplateKey = "prompts:chat"

// RedisProvider reads prompt templates from Redis so they can be changed
// without a redeploy. A missing key falls back to the compiled-in default.
type RedisProvider struct {
	client *redis.Client
}

func NewRedis(addr, password string) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisProvider{client: client}, nil
}

func (p *RedisProvider) ChatTemplate(ctx context.Context) (string, error) {
	tmpl, err := p.client.Get(ctx, chatTemplateKey).Result()
	if errors.Is(err, redis.Nil) {
		return DefaultChatTemplate, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch chat template: %w", err)
	}
	return tmpl, nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}
