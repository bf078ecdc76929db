package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/nutrition-navigator/internal/config"
	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/stats"
)

// BenchmarkEventProcessing measures how fast a pool of workers aggregates
// food log events into Redis.
func BenchmarkEventProcessing(b *testing.B) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatal(err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := &config.Config{Kafka: config.KafkaConfig{RetryMax: 1}}
	w := NewWorker(cfg, stats.NewRecorder(rdb), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	const numWorkers = 8
	methods := models.EntryMethods
	now := time.Now()

	messages := make(chan *sarama.ConsumerMessage, numWorkers)
	errCh := make(chan error, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range messages {
				if err := w.processEvent(context.Background(), msg); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}()
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		payload, _ := json.Marshal(models.FoodLogEvent{
			Type:        models.EventFoodLogCreated,
			ID:          fmt.Sprintf("event-%d", i),
			UserID:      fmt.Sprintf("user-%d", i%100),
			EntryMethod: methods[i%len(methods)],
			Timestamp:   now,
		})
		messages <- &sarama.ConsumerMessage{Offset: int64(i), Value: payload}
	}
	close(messages)

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			b.Fatal(err)
		}
	}
}
