package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/dedup"
	"github.com/triage-ai/lark-agent/internal/engine"
	"github.com/triage-ai/lark-agent/internal/i18n"
	"github.com/triage-ai/lark-agent/internal/metrics"
)

const (
	commandPrefix     = "/lark "
	defaultJobTimeout = 3 * time.Minute
	sendTimeout       = 15 * time.Second
	claimTimeout      = 2 * time.Second
)

// Outcome describes what Submit did with an update.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeQueued    Outcome = "queued"
	OutcomeOverflow  Outcome = "overflow"
	OutcomeRejected  Outcome = "rejected"
)

// Runner executes a free-text task.
type Runner interface {
	Run(ctx context.Context, req engine.TaskRequest) (*engine.TaskResult, error)
}

// Dispatcher executes a structured command and always returns user-facing text.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string, params map[string]any) string
}

type ProcessorOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

type job struct {
	updateID int64
	chatID   int64
	text     string
	name     string
}

// Processor answers accepted updates on a bounded worker pool. Accepted
// updates always get exactly one final message; Close waits for every
// accepted job.
type Processor struct {
	runner     Runner
	dispatcher Dispatcher
	sender     Sender
	seen       dedup.Store
	T          i18n.TranslateFunc
	jobTimeout time.Duration
	logger     *zap.Logger

	jobs     chan job
	workers  sync.WaitGroup
	overflow sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewProcessor(runner Runner, dispatcher Dispatcher, sender Sender, seen dedup.Store, T i18n.TranslateFunc, opts ProcessorOptions, logger *zap.Logger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	p := &Processor{
		runner:     runner,
		dispatcher: dispatcher,
		sender:     sender,
		seen:       seen,
		T:          T,
		jobTimeout: opts.JobTimeout,
		logger:     logger,
		jobs:       make(chan job, opts.QueueSize),
	}
	for range opts.Workers {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

// Submit accepts u for background processing without waiting for it.
func (p *Processor) Submit(ctx context.Context, u Update) Outcome {
	outcome := p.submit(ctx, u)
	metrics.WebhookUpdatesTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (p *Processor) submit(ctx context.Context, u Update) Outcome {
	if !u.Actionable() {
		return OutcomeIgnored
	}

	// Held across the claim so a closing processor never claims an update it
	// will not run.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return OutcomeRejected
	}

	if p.seen != nil {
		claimCtx, cancel := context.WithTimeout(ctx, claimTimeout)
		first, err := p.seen.Claim(claimCtx, u.UpdateID)
		cancel()
		if err != nil {
			p.logger.Warn("dedup store unavailable, processing update anyway",
				zap.Int64("update_id", u.UpdateID),
				zap.Error(err),
			)
		} else if !first {
			p.logger.Debug("duplicate update dropped", zap.Int64("update_id", u.UpdateID))
			return OutcomeDuplicate
		}
	}

	j := job{
		updateID: u.UpdateID,
		chatID:   u.Message.Chat.ID,
		text:     u.Message.Text,
		name:     u.SenderName(),
	}

	select {
	case p.jobs <- j:
		metrics.WebhookQueueDepth.Set(float64(len(p.jobs)))
		return OutcomeQueued
	default:
		p.logger.Warn("webhook queue full, running job on its own goroutine",
			zap.Int64("update_id", u.UpdateID),
		)
		p.overflow.Add(1)
		go func() {
			defer p.overflow.Done()
			p.handle(j)
		}()
		return OutcomeOverflow
	}
}

func (p *Processor) worker() {
	defer p.workers.Done()
	for j := range p.jobs {
		metrics.WebhookQueueDepth.Set(float64(len(p.jobs)))
		p.handle(j)
	}
}

// Close stops accepting updates and waits for queued and running jobs.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.workers.Wait()
	p.overflow.Wait()
}

func (p *Processor) handle(j job) {
	logger := p.logger.With(zap.Int64("update_id", j.updateID), zap.Int64("chat_id", j.chatID))
	finalSent := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("webhook job panicked", zap.Any("panic", r))
			if !finalSent {
				p.send(j.chatID, p.T("webhook.failed"), logger)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	p.send(j.chatID, p.T("webhook.processing"), logger)

	var final string
	if cmd, ok := strings.CutPrefix(j.text, commandPrefix); ok && p.dispatcher != nil {
		command, params := splitCommand(cmd)
		final = p.T("webhook.done", map[string]any{"Result": p.dispatcher.Dispatch(ctx, command, params)})
	} else {
		res, err := p.runner.Run(ctx, engine.TaskRequest{
			Text:        j.text,
			SessionID:   strconv.FormatInt(j.chatID, 10),
			DisplayName: j.name,
			Source:      "telegram",
		})
		if err != nil {
			logger.Error("task failed", zap.Error(err))
			final = p.failureMessage(err)
		} else {
			final = p.T("webhook.done", map[string]any{"Result": res.Text})
		}
	}

	finalSent = true
	p.send(j.chatID, final, logger)
}

func (p *Processor) failureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return p.T("webhook.timeout")
	case errors.Is(err, config.ErrBaseLockViolation), errors.Is(err, engine.ErrToolDenied):
		return p.T("webhook.policy_violation")
	default:
		return p.T("webhook.failed")
	}
}

func (p *Processor) send(chatID int64, text string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := p.sender.Send(ctx, chatID, text); err != nil {
		logger.Error("failed to send telegram message", zap.Error(err))
	}
}

// splitCommand separates a trailing JSON object of params from the command
// phrase, as in `list records {"table_id":"tbl1"}`.
func splitCommand(s string) (string, map[string]any) {
	s = strings.TrimSpace(s)
	idx := strings.Index(s, "{")
	if idx < 0 {
		return s, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(s[idx:]), &params); err != nil {
		return s, nil
	}
	return strings.TrimSpace(s[:idx]), params
}
