package mqtt

import (
	"context"

	"github.com/golang/glog"
)

// Monitor watches state reports of all links under the topic prefix.
// It implements framework.Runnable.
type Monitor struct {
	Queue   *Queue
	Handler func(topic string, report *StateReport)
}

// Run implements Runnable.
func (m *Monitor) Run(ctx context.Context) error {
	sub := m.Queue.Sub(StateTopic("+"), m.handle)
	defer sub.Close()
	token := m.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	defer m.Queue.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (m *Monitor) handle(topic string, payload []byte) {
	report, err := DecodeStateReport(payload)
	if err != nil {
		glog.Warningf("%s: bad state report: %v", topic, err)
		return
	}
	if h := m.Handler; h != nil {
		h(topic, report)
	}
}
