package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

type service struct {
	client          paho_mqtt.Client
	discoveryPrefix string
	baseTopic       string

	mu                sync.Mutex
	configuredSensors map[string]struct{}
}

func New(client paho_mqtt.Client, discoveryPrefix, baseTopic string) *service {
	return &service{
		client:            client,
		discoveryPrefix:   discoveryPrefix,
		baseTopic:         baseTopic,
		configuredSensors: make(map[string]struct{}),
	}
}

// NewClient returns a paho client for broker that reconnects on its own.
func NewClient(broker, clientID, username, password string) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func (s *service) Disconnect() {
	s.client.Disconnect(250)
}
