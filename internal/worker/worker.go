// Package worker provides the NATS job path: text-processed events in,
// rendered audio in the object store and a reply event out.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/service"
)

const handleMessageTimeout = 10 * time.Minute

// Renderer is the slice of the service the worker needs.
type Renderer interface {
	Render(ctx context.Context, req service.Request) ([]byte, error)
}

// NatsWorker listens for text-processed events and renders speech for them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	renderer       Renderer
	log            *logger.Logger
}

// NewNatsWorker creates a worker bound to the given subject.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	renderer Renderer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		renderer:       renderer,
		log:            log,
	}
}

// Run subscribes and blocks until the context is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal text-processed event: %v", err)

		return
	}

	audioKey, err := w.ProcessJob(ctx, &event)
	if err != nil {
		w.log.Error("Failed to process job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	reply := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReply(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// ProcessJob downloads the job text, renders speech with validated default
// parameters, and uploads the WAV under a fresh key.
func (w *NatsWorker) ProcessJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	audioData, err := w.renderer.Render(ctx, service.Request{
		Text:   string(textData),
		Params: w.paramsFromEvent(event),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render speech: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

// paramsFromEvent maps the event's sampling hints onto this service's
// validated ranges. The event contract predates the cfg parameters, so
// out-of-range hints are clamped rather than rejected; a job should render
// with the nearest legal value, not bounce.
func (w *NatsWorker) paramsFromEvent(event *events.TextProcessedEvent) core.GenerationParams {
	params := core.DefaultGenerationParams()

	if event.Temperature != 0 {
		params.Temperature = w.clamp(
			"temperature", event.Temperature, core.MinTemperature, core.MaxTemperature)
	}

	if event.TopP != 0 {
		params.TopP = w.clamp("top_p", event.TopP, core.MinTopP, core.MaxTopP)
	}

	return params
}

func (w *NatsWorker) clamp(name string, value, low, high float64) float64 {
	switch {
	case value < low:
		w.log.Warn("Event %s %.2f below range, clamped to %.2f", name, value, low)

		return low
	case value > high:
		w.log.Warn("Event %s %.2f above range, clamped to %.2f", name, value, high)

		return high
	default:
		return value
	}
}

func (w *NatsWorker) publishReply(msg *nats.Msg, reply *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}
