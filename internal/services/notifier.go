package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fnaplatform/fna-backend/internal/platform/envutil"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

// Notifier fans emitted alerts out to interested consumers. Delivery is
// best-effort; a publish failure never fails the evaluation that produced
// the alert.
type Notifier interface {
	PublishAlert(ctx context.Context, alert *types.Alert) error
	Close() error
}

// AlertChannel is the pub/sub channel one user's alerts are published on.
func AlertChannel(userID string) string {
	return "fna.alerts." + userID
}

type redisNotifier struct {
	log    *logger.Logger
	client *redis.Client
}

// NewRedisNotifier connects the alert bus. When REDIS_ADDR is unset the
// notifier is disabled and (nil, nil) is returned; the alert service treats
// a nil notifier as "no fan-out".
func NewRedisNotifier(ctx context.Context, log *logger.Logger) (Notifier, error) {
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: envutil.Str("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("alert notifier connected", "addr", addr)
	return &redisNotifier{log: log.With("service", "AlertNotifier"), client: client}, nil
}

func (n *redisNotifier) PublishAlert(ctx context.Context, alert *types.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, AlertChannel(alert.UserID.String()), payload).Err()
}

func (n *redisNotifier) Close() error {
	return n.client.Close()
}
