package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/registrar-io/registrar/internal/registration"
)

// publishTimeout bounds each event publish so a slow broker cannot stall an
// import run.
const publishTimeout = 5 * time.Second

// Event is the JSON payload published per lifecycle transition. Summary and
// Error are only set for their respective event types.
type Event struct {
	RunID     uuid.UUID             `json:"runId"`
	Type      string                `json:"type"`
	Message   string                `json:"message,omitempty"`
	Summary   *registration.Summary `json:"summary,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// messageWriter is the subset of kafka.Writer used by the notifier.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka publishes run lifecycle events to a Kafka topic, keyed by run id so
// all events of one run land on the same partition in order.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
	clock  func() time.Time
}

// NewKafka creates a Kafka notifier producing to topic on the given brokers.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Kafka{writer: writer, logger: logger, clock: time.Now}
}

// Started publishes a run-started event.
func (k *Kafka) Started(run uuid.UUID) {
	k.publish(Event{RunID: run, Type: EventStarted})
}

// Progress publishes an intermediate status message.
func (k *Kafka) Progress(run uuid.UUID, message string) {
	k.publish(Event{RunID: run, Type: EventProgress, Message: message})
}

// Done publishes the run's final summary.
func (k *Kafka) Done(run uuid.UUID, summary *registration.Summary) {
	k.publish(Event{RunID: run, Type: EventDone, Summary: summary})
}

// Failed publishes a fatal run error.
func (k *Kafka) Failed(run uuid.UUID, err error) {
	k.publish(Event{RunID: run, Type: EventFailed, Error: err.Error()})
}

// Close flushes and closes the underlying writer when it owns one.
func (k *Kafka) Close() error {
	if w, ok := k.writer.(*kafka.Writer); ok {
		return w.Close()
	}

	return nil
}

// publish sends one event. Publishing is best effort: a broker failure is
// logged and the run continues, since notification delivery must never fail
// an import.
func (k *Kafka) publish(event Event) {
	event.Timestamp = k.clock()

	payload, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("marshaling notifier event", "run_id", event.RunID, "type", event.Type, "error", err)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID.String()),
		Value: payload,
	})
	if err != nil {
		k.logger.Error("publishing notifier event", "run_id", event.RunID, "type", event.Type, "error", err)
	}
}
