package main

import (
	"flag"
	"log"

	"github.com/robotalks/oilink/pkg/env"
	fx "github.com/robotalks/oilink/pkg/framework"
	"github.com/robotalks/oilink/pkg/telemetry/mqtt"
)

const defaultMQTTURL = "mqtt://localhost:1883/robo/"

func init() {
	env.SetupMQTTFlags()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	mqttURL := env.Default().MQTTBrokerURL
	if mqttURL == "" {
		mqttURL = defaultMQTTURL
	}
	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	mon := &mqtt.Monitor{
		Queue: q,
		Handler: func(topic string, r *mqtt.StateReport) {
			log.Printf("%s: [%s] %s sent=%d received=%d queries=%d",
				r.ID, r.State, r.Device, r.Stats.BytesSent, r.Stats.BytesReceived, r.Stats.Queries)
		},
	}
	runner := fx.NewRunner().HandleSignals().Go(fx.NamedRun("monitor", mon))
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
