// Command ferrumdeck-worker is the worker binary: it pulls step jobs off
// the Redis-Streams transport, runs each one past the policy evaluator and
// the Airlock inspector, and reports the outcome back to the queue via
// acknowledgement. It owns no repository connection directly, since
// persistence is a contract (internal/contracts) implemented by a
// collaborator outside this module, but it is the composition root for
// every package this repository does implement.
//
// Exit codes: 0 on normal shutdown, 1 on fatal startup error, 2 on config
// error, matching the worker binary's documented contract.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sattyamjjain/ferrumdeck/internal/airlock"
	"github.com/sattyamjjain/ferrumdeck/internal/budget"
	"github.com/sattyamjjain/ferrumdeck/internal/config"
	"github.com/sattyamjjain/ferrumdeck/internal/policy"
	"github.com/sattyamjjain/ferrumdeck/internal/queue"
	"github.com/sattyamjjain/ferrumdeck/internal/telemetry"
)

const consumerGroupMaxAttempts = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	logger := telemetry.NewClueLogger()
	for _, w := range cfg.Warnings {
		logger.Warn(context.Background(), "ferrumdeck-worker: config warning", "warning", w)
	}

	client, err := queue.NewClient(cfg.RedisURL, cfg.RedisQueuePrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal startup error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.InitQueue(ctx, queue.Steps); err != nil {
		fmt.Fprintln(os.Stderr, "fatal startup error:", err)
		os.Exit(1)
	}
	if err := client.InitQueue(ctx, queue.DLQ); err != nil {
		fmt.Fprintln(os.Stderr, "fatal startup error:", err)
		os.Exit(1)
	}

	airlockCfg := airlock.DefaultConfig()
	inspector := airlock.NewInspector(airlockCfg, logger)
	allowlist := policy.ToolAllowlist{
		ApprovalRequired: append(append([]string{}, airlockCfg.Rce.TargetTools...), airlockCfg.Exfiltration.TargetTools...),
	}
	policyEngine := policy.New(allowlist, budget.DefaultBudget(), logger)
	w := &worker{client: client, inspector: inspector, policy: policyEngine, logger: logger, consumerID: "worker-" + hostnameOrFallback()}

	logger.Info(ctx, "ferrumdeck-worker: starting", "consumer", w.consumerID, "queue_prefix", cfg.RedisQueuePrefix)
	w.run(ctx)
	logger.Info(ctx, "ferrumdeck-worker: shut down cleanly")
}

type worker struct {
	client     *queue.Client
	inspector  *airlock.Inspector
	policy     *policy.Engine
	logger     telemetry.Logger
	consumerID string
}

// run polls for step jobs until ctx is cancelled, reclaiming any entries
// left pending by a crashed consumer every few poll cycles.
func (w *worker) run(ctx context.Context) {
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := queue.Dequeue[queue.StepJob](ctx, w.client, queue.Steps, w.consumerID, 10, 2*time.Second)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			w.logger.Error(ctx, "ferrumdeck-worker: dequeue failed", "error", err)
			continue
		}
		for _, d := range deliveries {
			w.handle(ctx, d)
		}

		ticks++
		if ticks%5 == 0 {
			w.reclaimStale(ctx)
		}
	}
}

// handle inspects and acknowledges one delivered step job. Tool execution
// itself is out of scope for this repository (spec non-goal); the worker's
// job here is the governance path: policy decision, Airlock inspection,
// then acknowledgement so the job is not redelivered.
func (w *worker) handle(ctx context.Context, d queue.Delivery[queue.StepJob]) {
	job := d.Message.Payload

	decision := w.policy.EvaluateToolCall(ctx, toolName(job))
	if decision.IsDenied() {
		w.logger.Warn(ctx, "ferrumdeck-worker: policy denied step", "run_id", job.RunID, "step_id", job.StepID, "reason", decision.Reason)
		_ = w.client.Ack(ctx, queue.Steps, d.StreamID)
		return
	}

	result := w.inspector.Inspect(ctx, airlockContext(job))
	if !result.Allowed {
		w.logger.Warn(ctx, "ferrumdeck-worker: airlock blocked step", "run_id", job.RunID, "step_id", job.StepID, "risk_score", result.RiskScore)
		_ = w.client.Ack(ctx, queue.Steps, d.StreamID)
		return
	}

	w.inspector.RecordCall(airlockContext(job))
	w.logger.Debug(ctx, "ferrumdeck-worker: step passed governance checks", "run_id", job.RunID, "step_id", job.StepID)

	if err := w.client.Ack(ctx, queue.Steps, d.StreamID); err != nil {
		w.logger.Error(ctx, "ferrumdeck-worker: ack failed", "run_id", job.RunID, "step_id", job.StepID, "error", err)
	}
}

// reclaimStale reassigns entries left pending by a crashed consumer to
// this one, routing anything past its attempt budget to the dead-letter
// queue instead of reclaiming it forever.
func (w *worker) reclaimStale(ctx context.Context) {
	claimed, err := queue.ClaimPending[queue.StepJob](ctx, w.client, queue.Steps, w.consumerID, 30*time.Second, 50)
	if err != nil {
		w.logger.Error(ctx, "ferrumdeck-worker: claim pending failed", "error", err)
		return
	}
	for _, d := range claimed {
		if d.Message.Attempts >= consumerGroupMaxAttempts {
			dlq := d.Message
			dlq.Attempts++
			if _, err := queue.Enqueue(ctx, w.client, queue.DLQ, dlq); err != nil {
				w.logger.Error(ctx, "ferrumdeck-worker: dlq enqueue failed", "error", err)
				continue
			}
			_ = w.client.Ack(ctx, queue.Steps, d.StreamID)
			w.logger.Warn(ctx, "ferrumdeck-worker: routed stale job to dlq", "run_id", d.Message.Payload.RunID, "step_id", d.Message.Payload.StepID)
			continue
		}
		w.handle(ctx, d)
	}
}

// toolName extracts the actual tool identity from a step job's input (set
// by dag's StepTool schema as "tool_name"), falling back to the step id for
// step types that carry no such field so the Airlock's target-tool lists
// still have something stable to match against.
func toolName(job queue.StepJob) string {
	if name, ok := job.Input["tool_name"].(string); ok && name != "" {
		return name
	}
	return job.StepID
}

func airlockContext(job queue.StepJob) airlock.InspectionContext {
	return airlock.InspectionContext{ToolName: toolName(job), ToolInput: job.Input}
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}
