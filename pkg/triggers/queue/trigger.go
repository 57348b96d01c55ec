// Package queue provides the Redis-backed event trigger source.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rivetflow/rivet/pkg/models"
	"github.com/rivetflow/rivet/pkg/protocol"
)

// Source pops messages off a Redis list and fires the bound workflow with
// the message body as trigger payload.
type Source struct {
	NodeID     string
	WorkflowID string
	Queue      string
	Connection map[string]string

	client   redis.UniversalClient
	callback protocol.TriggerCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSource builds a queue source for one trigger node. The node's
// parameters must name the list under "queue"; "connection" may carry
// addr, password and db overrides.
func NewSource(workflowID string, node *models.WorkflowNode, logger *slog.Logger) (*Source, error) {
	queue, _ := node.Parameters["queue"].(string)

	connection := make(map[string]string)

	if connectionConfig, ok := node.Parameters["connection"].(map[string]any); ok {
		for key, value := range connectionConfig {
			if str, ok := value.(string); ok {
				connection[key] = str
			}
		}
	}

	source := &Source{
		NodeID:     node.ID,
		WorkflowID: workflowID,
		Queue:      queue,
		Connection: connection,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"node_id", node.ID,
			"workflow_id", workflowID,
			"queue", queue,
		),
	}

	if err := source.Validate(context.Background()); err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate(_ context.Context) error {
	if s.WorkflowID == "" {
		return errors.New("queue trigger workflow id is required")
	}

	if s.Queue == "" {
		return errors.New("queue trigger queue name is required")
	}

	return nil
}

func (s *Source) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	s.logger.InfoContext(ctx, "Starting queue trigger")
	s.callback = callback

	if err := s.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) initializeClient(ctx context.Context) error {
	addr := s.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr := s.Connection["db"]; dbStr != "" {
		if _, err := fmt.Sscanf(dbStr, "%d", &db); err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: s.Connection["password"],
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := s.processMessage(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, 1*time.Second, s.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var payload map[string]any
	if err := json.Unmarshal([]byte(message), &payload); err != nil {
		payload = map[string]any{"message": message}
	}

	if payload["timestamp"] == nil {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	payload["node_id"] = s.NodeID

	go func() {
		if err := s.callback(ctx, s.WorkflowID, models.TriggerTypeEvent, payload); err != nil {
			s.logger.ErrorContext(ctx, "Failed to start event execution", "error", err)
		}
	}()

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue trigger")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
