package runner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/tomoflow/config"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// EventKind names the events of a run.
type EventKind string

const (
	RunStarted    EventKind = "started"
	StageStarted  EventKind = "stage_started"
	StageProgress EventKind = "progress"
	StageFinished EventKind = "stage_finished"
	RunStopped    EventKind = "stopped"
	RunFinished   EventKind = "finished"
	RunFailed     EventKind = "failed"
)

// Event reports the progress of a run.
type Event struct {
	RunID   string    `json:"run_id"`
	Kind    EventKind `json:"event"`
	Stage   int       `json:"stage"`
	Stages  int       `json:"stages"`
	Plugin  string    `json:"plugin,omitempty"`
	Percent float64   `json:"percent"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

func (e Event) String() string {
	s := fmt.Sprintf("run %s %s", e.RunID, e.Kind)
	if e.Plugin != "" {
		s += fmt.Sprintf(" stage %d/%d %s", e.Stage+1, e.Stages, e.Plugin)
	}
	if e.Kind == StageProgress {
		s += fmt.Sprintf(" %.0f%%", e.Percent)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// Notifier receives run events.  Notify must not block for long.
type Notifier interface {
	Notify(e Event)
	Close() error
}

// LogNotifier writes events to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(e Event) {
	switch e.Kind {
	case RunFailed:
		tomo.Errorf("%s\n", e)
	case StageProgress:
		tomo.Debugf("%s\n", e)
	default:
		tomo.Infof("%s\n", e)
	}
}

func (LogNotifier) Close() error { return nil }

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * tomo.Kilo

// KafkaNotifier publishes events as JSON to a kafka topic.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
	done     chan struct{}
}

// NewKafkaNotifier connects to the configured kafka servers.  The topic
// defaults to "tomoflow-" plus the host name.
func NewKafkaNotifier(kc config.KafkaConfig, hostID string) (*KafkaNotifier, error) {
	if !kc.Available() {
		return nil, fmt.Errorf("no kafka servers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.MaxMessageBytes = KafkaMaxMessageSize
	if kc.BufferSize > 0 {
		cfg.ChannelBufferSize = kc.BufferSize
	}
	producer, err := sarama.NewAsyncProducer(kc.Servers, cfg)
	if err != nil {
		return nil, err
	}
	topic := kc.Topic
	if topic == "" {
		topic = "tomoflow-" + hostID
	}
	return newKafkaNotifier(producer, topic)
}

func newKafkaNotifier(producer sarama.AsyncProducer, topic string) (*KafkaNotifier, error) {
	reg, err := regexp.Compile(`[^a-zA-Z0-9\._\-]+`)
	if err != nil {
		return nil, err
	}
	k := &KafkaNotifier{
		producer: producer,
		topic:    reg.ReplaceAllString(topic, "-"),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(k.done)
		for err := range producer.Errors() {
			tomo.Errorf("error on kafka send: %v\n", err)
		}
	}()
	tomo.Infof("Kafka topic for run events: %s\n", k.topic)
	return k, nil
}

// Topic returns the topic events are published to.
func (k *KafkaNotifier) Topic() string {
	return k.topic
}

func (k *KafkaNotifier) Notify(e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		tomo.Errorf("unable to marshal event for kafka: %v\n", err)
		return
	}
	key := sarama.StringEncoder(strconv.FormatInt(e.Time.UnixNano(), 10))
	k.producer.Input() <- &sarama.ProducerMessage{Topic: k.topic, Key: key, Value: sarama.ByteEncoder(value)}
}

// Close flushes queued events.
func (k *KafkaNotifier) Close() error {
	err := k.producer.Close()
	<-k.done
	if err != nil {
		tomo.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	tomo.Infof("Successfully shut down kafka producer.\n")
	return nil
}

// multiNotifier sends events to several notifiers.
type multiNotifier []Notifier

func (m multiNotifier) Notify(e Event) {
	for _, n := range m {
		n.Notify(e)
	}
}

func (m multiNotifier) Close() error {
	var first error
	for _, n := range m {
		if err := n.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Notifiers combines notifiers into one.
func Notifiers(n ...Notifier) Notifier {
	return multiNotifier(n)
}
