// Package gojob runs the droplet's background work on go-job queue
// primitives. The bootstrap pipeline, on-demand company-data pulls, and
// activity retention travel as queued messages consumed by a single worker
// loop with bounded retries.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-droplet/core"
	sqlstore "github.com/goliatone/go-droplet/store/sql"
	syncpkg "github.com/goliatone/go-droplet/sync"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// Job identifiers route dequeued messages to their handlers. The bootstrap
// id matches core.BootstrapTask.Name so logs line up across both runners.
const (
	JobIDBootstrap         = "droplet.bootstrap"
	JobIDCompanySync       = "droplet.sync.company_data"
	JobIDActivityRetention = "droplet.activity.retention"
)

// RetryPolicy bounds redelivery so a poisoned message cannot cycle forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize clamps the requested nack options for the given attempt number.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	if p.MaxDelay > 0 && opts.Delay > p.MaxDelay {
		opts.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		opts.Requeue = false
		if p.DeadLetterOnMax {
			opts.DeadLetter = true
		}
	}
	return opts
}

// BootstrapMessage packs a bootstrap request for the queue. The install
// token rides in the parameters, so the queue transport must stay in
// process or encrypted at rest, and nothing downstream may log parameters.
func BootstrapMessage(req core.BootstrapRequest) *job.ExecutionMessage {
	id := strings.TrimSpace(req.InstallationID)
	params := map[string]any{
		"installation_id": id,
		"company_id":      strings.TrimSpace(req.CompanyID),
		"company_name":    strings.TrimSpace(req.CompanyName),
		"shop_domain":     strings.TrimSpace(req.ShopDomain),
		"install_token":   strings.TrimSpace(req.InstallToken),
	}
	if len(req.Metadata) > 0 {
		params["metadata"] = copyAnyMap(req.Metadata)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDBootstrap,
		ScriptPath:     JobIDBootstrap,
		Parameters:     params,
		IdempotencyKey: JobIDBootstrap + ":" + id,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

func bootstrapRequestFromMessage(msg *job.ExecutionMessage) (core.BootstrapRequest, error) {
	if msg == nil {
		return core.BootstrapRequest{}, fmt.Errorf("gojob: bootstrap message is required")
	}
	req := core.BootstrapRequest{
		InstallationID: stringParam(msg.Parameters, "installation_id"),
		CompanyID:      stringParam(msg.Parameters, "company_id"),
		CompanyName:    stringParam(msg.Parameters, "company_name"),
		ShopDomain:     stringParam(msg.Parameters, "shop_domain"),
		InstallToken:   stringParam(msg.Parameters, "install_token"),
	}
	if req.InstallationID == "" {
		return core.BootstrapRequest{}, fmt.Errorf("gojob: bootstrap message missing installation_id")
	}
	if meta, ok := msg.Parameters["metadata"].(map[string]any); ok {
		req.Metadata = copyAnyMap(meta)
	}
	return req, nil
}

// CompanySyncMessage queues a full company-data pull for one installation.
func CompanySyncMessage(installationID string) *job.ExecutionMessage {
	id := strings.TrimSpace(installationID)
	return &job.ExecutionMessage{
		JobID:          JobIDCompanySync,
		ScriptPath:     JobIDCompanySync,
		Parameters:     map[string]any{"installation_id": id},
		IdempotencyKey: JobIDCompanySync + ":" + id,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// ActivityRetentionMessage queues a prune pass over the activity log.
func ActivityRetentionMessage(policy sqlstore.ActivityRetentionPolicy) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDActivityRetention,
		ScriptPath: JobIDActivityRetention,
		Parameters: map[string]any{
			"ttl_seconds": int64(policy.TTL / time.Second),
			"row_cap":     policy.RowCap,
		},
		IdempotencyKey: JobIDActivityRetention,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// QueueTaskRunner routes bootstrap tasks through the queue so webhook
// ingress can acknowledge before any platform call starts. Tasks with no
// queue mapping execute inline.
type QueueTaskRunner struct {
	Enqueuer queue.Enqueuer
}

func (r QueueTaskRunner) Run(ctx context.Context, task core.Task) error {
	if task == nil {
		return fmt.Errorf("gojob: task is required")
	}
	if r.Enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is required")
	}
	if bootstrap, ok := task.(*core.BootstrapTask); ok {
		return r.Enqueuer.Enqueue(ctx, BootstrapMessage(bootstrap.Request))
	}
	return task.Execute(ctx)
}

// HandlerFunc executes one dequeued message.
type HandlerFunc func(ctx context.Context, msg *job.ExecutionMessage) error

// BootstrapService is the slice of the core service the bootstrap job needs.
type BootstrapService interface {
	RunBootstrap(ctx context.Context, req core.BootstrapRequest) error
}

// BootstrapHandler decodes a queued bootstrap request and drives the
// exchange, registration, and activation pipeline.
func BootstrapHandler(service BootstrapService) HandlerFunc {
	return func(ctx context.Context, msg *job.ExecutionMessage) error {
		if service == nil {
			return fmt.Errorf("gojob: bootstrap service is required")
		}
		req, err := bootstrapRequestFromMessage(msg)
		if err != nil {
			return err
		}
		return service.RunBootstrap(ctx, req)
	}
}

// SyncRunner is the slice of the sync orchestrator the sync job needs.
type SyncRunner interface {
	SyncInstallation(ctx context.Context, installationID string) (syncpkg.Report, error)
}

// CompanySyncHandler runs a company-data pull for the installation named in
// the message. The orchestrator records its own activity, so the report is
// dropped here.
func CompanySyncHandler(syncer SyncRunner) HandlerFunc {
	return func(ctx context.Context, msg *job.ExecutionMessage) error {
		if syncer == nil {
			return fmt.Errorf("gojob: sync runner is required")
		}
		if msg == nil {
			return fmt.Errorf("gojob: sync message is required")
		}
		installationID := stringParam(msg.Parameters, "installation_id")
		if installationID == "" {
			return fmt.Errorf("gojob: sync message missing installation_id")
		}
		_, err := syncer.SyncInstallation(ctx, installationID)
		return err
	}
}

// ActivityPruner is the slice of the activity store the retention job needs.
type ActivityPruner interface {
	Prune(ctx context.Context, policy sqlstore.ActivityRetentionPolicy) (int, error)
}

// ActivityRetentionHandler prunes the activity log to the policy carried in
// the message.
func ActivityRetentionHandler(pruner ActivityPruner) HandlerFunc {
	return func(ctx context.Context, msg *job.ExecutionMessage) error {
		if pruner == nil {
			return fmt.Errorf("gojob: activity pruner is required")
		}
		if msg == nil {
			return fmt.Errorf("gojob: retention message is required")
		}
		policy := sqlstore.ActivityRetentionPolicy{
			TTL:    time.Duration(int64Param(msg.Parameters, "ttl_seconds")) * time.Second,
			RowCap: int(int64Param(msg.Parameters, "row_cap")),
		}
		_, err := pruner.Prune(ctx, policy)
		return err
	}
}

// Worker drains the queue and dispatches each message to the handler
// registered for its job id. Run is a single-consumer loop, so attempt
// counts need no locking.
type Worker struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	handlers map[string]HandlerFunc
	hooks    []worker.Hook
	attempts map[string]int
	log      glog.Logger
}

// NewWorker builds a worker with no registered handlers.
func NewWorker(dequeuer queue.Dequeuer, policy RetryPolicy, logger glog.Logger) *Worker {
	return &Worker{
		dequeuer: dequeuer,
		policy:   policy,
		handlers: map[string]HandlerFunc{},
		attempts: map[string]int{},
		log:      logger,
	}
}

// Handle registers the handler for a job id, replacing any previous one.
func (w *Worker) Handle(jobID string, handler HandlerFunc) {
	if w == nil || strings.TrimSpace(jobID) == "" || handler == nil {
		return
	}
	w.handlers[jobID] = handler
}

// AddHook attaches a lifecycle hook invoked around every message.
func (w *Worker) AddHook(hook worker.Hook) {
	if w == nil || hook == nil {
		return
	}
	w.hooks = append(w.hooks, hook)
}

// Run consumes messages until ctx ends or the dequeuer fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gojob: dequeue: %w", err)
		}
		if delivery == nil {
			continue
		}
		w.process(ctx, delivery)
	}
}

func (w *Worker) process(ctx context.Context, delivery queue.Delivery) {
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Ack(ctx)
		return
	}
	key := attemptKey(msg)
	attempt := w.attempts[key] + 1

	handler, ok := w.handlers[msg.JobID]
	if !ok {
		w.logger().Warn("dropping message with no handler", "job_id", msg.JobID)
		delete(w.attempts, key)
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "no handler registered"})
		return
	}

	startedAt := time.Now().UTC()
	event := worker.Event{Message: msg, Attempt: attempt, StartedAt: startedAt}
	w.emit(ctx, event, worker.Hook.OnStart)

	err := w.invoke(ctx, handler, msg)
	event.Duration = time.Since(startedAt)
	if err == nil {
		delete(w.attempts, key)
		w.emit(ctx, event, worker.Hook.OnSuccess)
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			w.logger().Error("ack failed", "job_id", msg.JobID, "error", ackErr)
		}
		return
	}

	event.Err = err
	opts := w.policy.Normalize(queue.NackOptions{
		Delay:   retryDelay(attempt),
		Requeue: true,
		Reason:  err.Error(),
	}, attempt)
	event.Delay = opts.Delay
	if opts.Requeue {
		w.attempts[key] = attempt
		w.emit(ctx, event, worker.Hook.OnRetry)
	} else {
		delete(w.attempts, key)
		w.emit(ctx, event, worker.Hook.OnFailure)
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		w.logger().Error("nack failed", "job_id", msg.JobID, "error", nackErr)
	}
}

// invoke recovers handler panics so one poisoned message cannot kill the
// consumer loop.
func (w *Worker) invoke(ctx context.Context, handler HandlerFunc, msg *job.ExecutionMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gojob: handler panicked: %v", r)
		}
	}()
	return handler(ctx, msg)
}

func (w *Worker) emit(ctx context.Context, event worker.Event, fn func(worker.Hook, context.Context, worker.Event)) {
	for _, hook := range w.hooks {
		if hook == nil {
			continue
		}
		fn(hook, ctx, event)
	}
}

func (w *Worker) logger() glog.Logger {
	if w != nil && w.log != nil {
		return w.log
	}
	return glog.Ensure(nil)
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg.IdempotencyKey != "" {
		return msg.JobID + ":" + msg.IdempotencyKey
	}
	return msg.JobID
}

func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt*attempt) * time.Second
}

// LoggingHook logs job lifecycle transitions. Parameters never reach the
// log because the bootstrap message carries the install token.
type LoggingHook struct {
	Log glog.Logger
}

func (h LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.logger().WithContext(ctx).Debug("job started", eventFields(event)...)
}

func (h LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	fields := append(eventFields(event), "duration", event.Duration.String())
	h.logger().WithContext(ctx).Info("job succeeded", fields...)
}

func (h LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	fields := append(eventFields(event), "error", event.Err)
	h.logger().WithContext(ctx).Error("job failed", fields...)
}

func (h LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	fields := append(eventFields(event), "delay", event.Delay.String(), "error", event.Err)
	h.logger().WithContext(ctx).Warn("job retrying", fields...)
}

func (h LoggingHook) logger() glog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return glog.Ensure(nil)
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID)
	}
	return fields
}

// MemoryQueue is the in-process queue single-binary deployments run on. It
// honors the drop dedup policy while a message is still waiting.
type MemoryQueue struct {
	mu      sync.Mutex
	waiting map[string]struct{}
	ch      chan *job.ExecutionMessage
}

// NewMemoryQueue builds a queue holding at most capacity undelivered
// messages.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{
		waiting: map[string]struct{}{},
		ch:      make(chan *job.ExecutionMessage, capacity),
	}
}

// Enqueue adds the message unless an identical idempotency key is already
// waiting and the message asks to be dropped.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: queue is required")
	}
	if msg == nil {
		return fmt.Errorf("gojob: message is required")
	}
	key := dedupKey(msg)
	if key != "" {
		q.mu.Lock()
		if _, dup := q.waiting[key]; dup {
			q.mu.Unlock()
			return nil
		}
		q.waiting[key] = struct{}{}
		q.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		q.release(key)
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		q.release(key)
		return fmt.Errorf("gojob: queue is full")
	}
}

// Dequeue blocks until a message is available or ctx ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: queue is required")
	}
	select {
	case msg := <-q.ch:
		q.release(dedupKey(msg))
		return &memoryDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) release(key string) {
	if q == nil || key == "" {
		return
	}
	q.mu.Lock()
	delete(q.waiting, key)
	q.mu.Unlock()
}

func dedupKey(msg *job.ExecutionMessage) string {
	if msg == nil || msg.DedupPolicy != "drop" || msg.IdempotencyKey == "" {
		return ""
	}
	return msg.JobID + ":" + msg.IdempotencyKey
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	return nil
}

// Nack requeues after the requested delay. Dead-lettered or non-requeued
// messages are dropped; the in-process queue keeps no dead letter store.
func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if d == nil || d.queue == nil || d.msg == nil {
		return nil
	}
	if !opts.Requeue || opts.DeadLetter {
		return nil
	}
	if opts.Delay <= 0 {
		return d.queue.Enqueue(context.Background(), d.msg)
	}
	time.AfterFunc(opts.Delay, func() {
		_ = d.queue.Enqueue(context.Background(), d.msg)
	})
	return nil
}

func copyAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

var (
	_ core.TaskRunner = QueueTaskRunner{}
	_ worker.Hook     = LoggingHook{}
	_ queue.Enqueuer  = (*MemoryQueue)(nil)
	_ queue.Dequeuer  = (*MemoryQueue)(nil)
	_ queue.Delivery  = (*memoryDelivery)(nil)

	_ BootstrapService = (*core.Service)(nil)
	_ SyncRunner       = (*syncpkg.Orchestrator)(nil)
	_ ActivityPruner   = (*sqlstore.ActivityStore)(nil)
)
