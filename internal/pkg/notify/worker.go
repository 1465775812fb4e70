package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/sangamhq/sangam/internal/pkg/mail"
)

// Sender delivers a rendered notification email. Satisfied by mail.SendMail.
type Sender func(to, subject, body string) error

// Pruner is the housekeeping hook the worker ticks; the billing idempotency
// ledger satisfies it.
type Pruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// Worker consumes the notification queue and sends emails.
type Worker struct {
	client  *redis.Client
	send    Sender
	pruner  Pruner
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWorker creates a notification worker pool.
func NewWorker(client *redis.Client, send Sender, pruner Pruner, workers int) *Worker {
	if workers <= 0 {
		workers = 2
	}
	if send == nil {
		send = mail.SendMail
	}
	return &Worker{
		client:  client,
		send:    send,
		pruner:  pruner,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the worker goroutines and the housekeeping ticker.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true
	log.Infof("[Notify] Starting %d workers", w.workers)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	if w.pruner != nil {
		w.wg.Add(1)
		go w.housekeeping(1 * time.Hour)
	}
}

// Stop stops all workers and waits for them to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	log.Info("[Notify] Stopping workers...")
	close(w.stopCh)
	w.running = false
	w.wg.Wait()
	log.Info("[Notify] All workers stopped")
}

// housekeeping prunes expired idempotency ledger rows on a fixed interval.
func (w *Worker) housekeeping(interval time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			pruned, err := w.pruner.PruneExpired(ctx)
			if err != nil {
				log.Errorf("[Notify] Ledger prune failed: %v", err)
				continue
			}
			if pruned > 0 {
				log.Infof("[Notify] Pruned %d expired ledger entries", pruned)
			}
		}
	}
}

func (w *Worker) worker(id int) {
	defer w.wg.Done()
	log.Infof("[Notify] Worker %d started", id)

	ctx := context.Background()
	for {
		select {
		case <-w.stopCh:
			log.Infof("[Notify] Worker %d stopping", id)
			return
		default:
			n, err := w.dequeue(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[Notify] Worker %d: dequeue error: %v", id, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if n != nil {
				w.process(ctx, n)
			}
		}
	}
}

func (w *Worker) dequeue(ctx context.Context) (*Notification, error) {
	data, err := w.client.BRPopLPush(ctx, QueueKey, ProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}
	var n Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		// Drop undecodable entries rather than loop on them forever.
		w.client.LRem(ctx, ProcessingKey, 1, data)
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	w.client.LRem(ctx, ProcessingKey, 1, data)
	return &n, nil
}

func (w *Worker) process(ctx context.Context, n *Notification) {
	subject, body := Render(n)
	if err := w.send(n.Email, subject, body); err != nil {
		log.Errorf("[Notify] Sending %s to %s failed: %v", n.Kind, n.Email, err)
		n.RetryCount++
		if !n.IsRetryable() {
			log.Errorf("[Notify] Dropping %s to %s after %d attempts", n.Kind, n.Email, n.RetryCount)
			return
		}
		data, err := json.Marshal(n)
		if err != nil {
			return
		}
		w.client.LPush(ctx, QueueKey, data)
		return
	}
	log.Infof("[Notify] Sent %s to %s", n.Kind, n.Email)
}
