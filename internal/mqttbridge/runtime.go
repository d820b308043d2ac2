package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/host"
)

const writeQueue = 16

// Runtime mirrors accessories to an MQTT broker.
//
// State:    <prefix>/<serial>/<subtype>/<characteristic>      (retained)
// Commands: <prefix>/<serial>/<subtype>/<characteristic>/set
// Presence: <prefix>/bridge/status                            (online|offline)
//
// Commands are applied one at a time on a worker goroutine so the paho
// callback never waits on the device.
type Runtime struct {
	cfg config.MQTTConfig
	log *zap.SugaredLogger

	connect func(mqttConfig) (session, error)
}

func New(cfg config.MQTTConfig, log *zap.SugaredLogger) *Runtime {
	return &Runtime{
		cfg: cfg,
		log: log,
		connect: func(c mqttConfig) (session, error) {
			return newMQTTClient(c)
		},
	}
}

func (r *Runtime) Serve(ctx context.Context, bridge *host.Bridge) error {
	var password string
	if r.cfg.PasswordFile != "" {
		secret, err := config.ReadSecretFile(r.cfg.PasswordFile)
		if err != nil {
			return fmt.Errorf("read mqtt password: %w", err)
		}
		password = secret
	}

	sess, err := r.connect(mqttConfig{
		broker:      r.cfg.Broker,
		username:    r.cfg.Username,
		password:    password,
		clientID:    r.cfg.ClientID,
		willTopic:   r.statusTopic(),
		willPayload: "offline",
	})
	if err != nil {
		return err
	}
	defer sess.close()

	workCtx, stop := context.WithCancel(ctx)
	writes := make(chan func(), writeQueue)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		applyWrites(workCtx, writes)
	}()

	bridge.Observe(func(u host.Update) {
		r.publishValue(sess, u.SerialNumber, u.AccessoryUUID, u.Subtype, u.Characteristic, u.Value)
	})

	for _, acc := range bridge.Accessories() {
		for _, svc := range acc.Services() {
			for c, v := range svc.Values() {
				r.publishValue(sess, acc.Info().SerialNumber, acc.UUID, svc.Subtype, c, v)
			}
			for _, c := range []host.Characteristic{host.On} {
				if !svc.Writable(c) {
					continue
				}
				if err := r.subscribeSet(sess, writes, acc, svc, c); err != nil {
					return err
				}
			}
		}
	}

	if err := sess.publish(r.statusTopic(), []byte("online"), true); err != nil {
		r.log.Warnw("mqtt publish status", "err", err)
	}
	r.log.Infow("mqtt bridge ready", "broker", r.cfg.Broker, "prefix", r.cfg.TopicPrefix)

	<-ctx.Done()
	_ = sess.publish(r.statusTopic(), []byte("offline"), true)
	return nil
}

func (r *Runtime) subscribeSet(sess session, writes chan<- func(), acc *host.Accessory, svc *host.Service, c host.Characteristic) error {
	topic := r.topic(acc.Info().SerialNumber, acc.UUID, svc.Subtype, c) + "/set"
	_, err := sess.subscribe(topic, func(payload []byte) {
		value, err := parseBool(payload)
		if err != nil {
			r.log.Warnw("mqtt set ignored", "topic", topic, "payload", string(payload), "err", err)
			return
		}
		write := func() {
			if err := svc.Set(c, value); err != nil {
				r.log.Warnw("mqtt set rejected", "topic", topic, "err", err)
			}
		}
		select {
		case writes <- write:
		default:
			r.log.Warnw("mqtt set dropped, write queue full", "topic", topic)
		}
	})
	if err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

func applyWrites(ctx context.Context, writes <-chan func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case write := <-writes:
			write()
		}
	}
}

func (r *Runtime) publishValue(sess session, serial, uuid, subtype string, c host.Characteristic, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.log.Warnw("mqtt encode value", "characteristic", c, "err", err)
		return
	}
	topic := r.topic(serial, uuid, subtype, c)
	if err := sess.publish(topic, payload, true); err != nil {
		r.log.Warnw("mqtt publish", "topic", topic, "err", err)
	}
}

func (r *Runtime) topic(serial, uuid, subtype string, c host.Characteristic) string {
	id := serial
	if id == "" {
		id = uuid
	}
	return strings.Join([]string{r.prefix(), id, subtype, string(c)}, "/")
}

func (r *Runtime) statusTopic() string {
	return r.prefix() + "/bridge/status"
}

func (r *Runtime) prefix() string {
	prefix := strings.Trim(r.cfg.TopicPrefix, "/")
	if prefix == "" {
		return "flipr"
	}
	return prefix
}

func parseBool(payload []byte) (bool, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToUpper(s) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return strconv.ParseBool(s)
}
