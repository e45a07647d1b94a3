package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/oilink/pkg/oi"
)

// StateReport is published when the state of a link changes.
type StateReport struct {
	ID     string    `json:"id"`
	Device string    `json:"device,omitempty"`
	State  string    `json:"state"`
	Stats  oi.Stats  `json:"stats"`
	Time   time.Time `json:"time"`
}

// Meta describes a link and is published once connected to the broker.
type Meta struct {
	ID             string `json:"id"`
	Device         string `json:"device,omitempty"`
	MaxCommandSize int    `json:"max_command_size"`
}

// StateTopic returns the topic of state reports for link id.
func StateTopic(id string) string {
	return id + "/state"
}

// MetaTopic returns the topic of meta for link id.
func MetaTopic(id string) string {
	return id + "/meta"
}

// DecodeStateReport decodes the payload of a state report.
func DecodeStateReport(payload []byte) (*StateReport, error) {
	var r StateReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Reporter publishes link state changes. It implements oi.StateNotifier.
type Reporter struct {
	Queue  *Queue
	ID     string
	Device string
}

// NewReporter creates a Reporter publishing with q.
func NewReporter(q *Queue, id, device string) *Reporter {
	r := &Reporter{Queue: q, ID: id, Device: device}
	q.OnConnect = func(*Queue) {
		if err := r.publishMeta(); err != nil {
			glog.Warningf("publish meta error: %v", err)
		}
	}
	return r
}

// NewReporterFromURL creates a Reporter with a new Queue.
func NewReporterFromURL(brokerURL, id, device string) (*Reporter, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewReporter(q, id, device), nil
}

// Connect connects to the broker and waits up to timeout.
func (r *Reporter) Connect(timeout time.Duration) error {
	token := r.Queue.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connect MQTT broker timeout")
	}
	return token.Error()
}

// Close implements io.Closer.
func (r *Reporter) Close() error {
	return r.Queue.Close()
}

// StateChanged implements oi.StateNotifier. It never waits for the broker.
func (r *Reporter) StateChanged(ctx context.Context, l *oi.Link, state oi.State) {
	payload, err := json.Marshal(r.newReport(l.Stats(), state, time.Now()))
	if err != nil {
		glog.Errorf("encode state report error: %v", err)
		return
	}
	r.Queue.PubWith(StateTopic(r.ID), payload, 0, true)
}

func (r *Reporter) newReport(stats oi.Stats, state oi.State, now time.Time) *StateReport {
	return &StateReport{
		ID:     r.ID,
		Device: r.Device,
		State:  state.String(),
		Stats:  stats,
		Time:   now.UTC(),
	}
}

func (r *Reporter) publishMeta() error {
	payload, err := json.Marshal(&Meta{ID: r.ID, Device: r.Device, MaxCommandSize: oi.MaxCommandSize})
	if err != nil {
		return err
	}
	r.Queue.PubWith(MetaTopic(r.ID), payload, 0, true)
	return nil
}
