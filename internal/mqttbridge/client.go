package mqttbridge

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// session is the broker connection the runtime needs.
type session interface {
	subscribe(topic string, cb func([]byte)) (func(), error)
	publish(topic string, payload []byte, retained bool) error
	close()
}

type mqttClient struct {
	client mqtt.Client
	mu     sync.Mutex
	subs   map[string]map[int]func([]byte)
	nextID int
}

type mqttConfig struct {
	broker      string
	username    string
	password    string
	clientID    string
	willTopic   string
	willPayload string
}

func newMQTTClient(cfg mqttConfig) (*mqttClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.broker)
	opts.SetUsername(cfg.username)
	opts.SetPassword(cfg.password)
	opts.SetClientID(cfg.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)
	if cfg.willTopic != "" {
		opts.SetWill(cfg.willTopic, cfg.willPayload, 1, true)
	}

	mc := &mqttClient{subs: make(map[string]map[int]func([]byte))}
	opts.SetDefaultPublishHandler(mc.dispatch)
	opts.OnConnect = func(_ mqtt.Client) {
		mc.resubscribeAll()
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.broker, token.Error())
	}
	mc.client = client
	return mc, nil
}

func (c *mqttClient) subscribe(topic string, cb func([]byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[topic][id] = cb
	needSubscribe := len(c.subs[topic]) == 1
	c.mu.Unlock()

	if needSubscribe {
		if token := c.client.Subscribe(topic, 1, nil); token.Wait() && token.Error() != nil {
			return nil, token.Error()
		}
	}

	return func() {
		c.mu.Lock()
		callbacks := c.subs[topic]
		if callbacks == nil {
			c.mu.Unlock()
			return
		}
		delete(callbacks, id)
		shouldUnsub := len(callbacks) == 0
		if shouldUnsub {
			delete(c.subs, topic)
		}
		c.mu.Unlock()
		if shouldUnsub {
			_ = c.client.Unsubscribe(topic).Wait()
		}
	}, nil
}

func (c *mqttClient) publish(topic string, payload []byte, retained bool) error {
	if token := c.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttClient) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	callbacks := c.subs[msg.Topic()]
	list := make([]func([]byte), 0, len(callbacks))
	for _, cb := range callbacks {
		list = append(list, cb)
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Payload())
	}
}

func (c *mqttClient) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		_ = c.client.Subscribe(topic, 1, nil).Wait()
	}
}

func (c *mqttClient) close() {
	c.client.Disconnect(250)
}
