package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

const (
	defaultSweepInterval  = time.Hour
	defaultDeliverTimeout = 5 * time.Second
	deliverMaxElapsed     = 30 * time.Second
)

// Dispatcher executes action intents emitted by the engine: notification
// intents are delivered to a webhook endpoint, tag/assign intents are written
// through the repo, and change_status intents are routed back through the
// engine so pipeline rules still apply.
type Dispatcher struct {
	Engine     engine.Engine
	Repo       repo.Repo
	WebhookURL string
	Client     *http.Client
	Now        func() time.Time
}

func New(eng engine.Engine, r repo.Repo, webhookURL string) *Dispatcher {
	return &Dispatcher{
		Engine:     eng,
		Repo:       r,
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: defaultDeliverTimeout},
		Now:        time.Now,
	}
}

// Run performs periodic sweeps until the context is cancelled. Each sweep's
// intents are deduplicated against previously dispatched keys, so repeated
// sweeps over unchanged state deliver nothing new.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.Sweep(ctx); err != nil {
			log.Printf("dispatch: sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one trigger sweep and dispatches the unseen intents. It returns
// the intents that were actually dispatched this pass; intents already marked
// seen are skipped.
func (d *Dispatcher) Sweep(ctx context.Context) ([]domain.ActionIntent, error) {
	intents, err := d.Engine.RunSweep(ctx)
	if err != nil {
		return nil, err
	}
	var dispatched []domain.ActionIntent
	for _, intent := range engine.DedupeIntents(intents) {
		seen, err := d.Repo.IntentSeen(ctx, intent.Key())
		if err != nil {
			return dispatched, err
		}
		if seen {
			continue
		}
		if err := d.Dispatch(ctx, intent); err != nil {
			log.Printf("dispatch: intent %s failed: %v", intent.Key(), err)
			continue
		}
		if err := d.Repo.MarkIntentSeen(ctx, intent.Key(), d.Now().UTC()); err != nil {
			return dispatched, err
		}
		dispatched = append(dispatched, intent)
	}
	return dispatched, nil
}

// DispatchAll delivers a batch of intents, typically the ones returned from
// a transition. Failures are logged and do not block the remaining intents.
func (d *Dispatcher) DispatchAll(ctx context.Context, intents []domain.ActionIntent) {
	for _, intent := range engine.DedupeIntents(intents) {
		if err := d.Dispatch(ctx, intent); err != nil {
			log.Printf("dispatch: intent %s failed: %v", intent.Key(), err)
		}
	}
}

// Dispatch executes one intent.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.ActionIntent) error {
	now := d.Now().UTC()
	switch intent.Action.Kind {
	case domain.ActionSendNotification, domain.ActionSlackNotify:
		return d.deliver(ctx, intent)
	case domain.ActionAddTag:
		return d.Repo.AddTag(ctx, intent.ProjectID, intent.Action.Tag, now)
	case domain.ActionAssignTo:
		return d.Repo.AssignProject(ctx, intent.ProjectID, intent.Action.UserID, now)
	case domain.ActionChangeStatus:
		_, err := d.Engine.ApplyIntent(ctx, intent)
		return err
	default:
		return fmt.Errorf("unknown action kind %q", intent.Action.Kind)
	}
}

type notificationPayload struct {
	TriggerID   string    `json:"trigger_id,omitempty"`
	TriggerName string    `json:"trigger_name,omitempty"`
	ProjectID   string    `json:"project_id"`
	Kind        string    `json:"kind"`
	Template    string    `json:"template,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Message     string    `json:"message,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// deliver posts a notification intent to the webhook endpoint, retrying
// transient failures with exponential backoff.
func (d *Dispatcher) deliver(ctx context.Context, intent domain.ActionIntent) error {
	if strings.TrimSpace(d.WebhookURL) == "" {
		// No endpoint configured: notification intents are dropped on the
		// floor rather than failing the pipeline.
		return nil
	}
	payload := notificationPayload{
		TriggerID:   intent.TriggerID,
		TriggerName: intent.TriggerName,
		ProjectID:   intent.ProjectID,
		Kind:        string(intent.Action.Kind),
		Template:    intent.Action.Template,
		Recipient:   intent.Action.Recipient,
		Channel:     intent.Action.Channel,
		Message:     intent.Action.Message,
		SentAt:      d.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = deliverMaxElapsed
	return backoff.Retry(func() error {
		return d.post(ctx, data)
	}, backoff.WithContext(bo, ctx))
}

func (d *Dispatcher) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
	return nil
}
