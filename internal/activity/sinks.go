package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

// Store is the persistence the Mongo sink needs.
type Store interface {
	InsertActivity(ctx context.Context, entry *models.ActivityLog) error
}

// StoreSink writes entries to the activitylogs collection.
type StoreSink struct {
	Store Store
}

func (s StoreSink) Name() string { return "mongo" }

func (s StoreSink) Write(ctx context.Context, entry *models.ActivityLog) error {
	return s.Store.InsertActivity(ctx, entry)
}

// MQTTSink publishes each entry as JSON on <prefix>/activity/<category>.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTSink connects to broker and returns a sink publishing under prefix.
func NewMQTTSink(broker, clientID, prefix string, timeout time.Duration) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", err)
	}
	return NewMQTTSinkWithClient(client, prefix), nil
}

// NewMQTTSinkWithClient wraps an existing client.
func NewMQTTSinkWithClient(client mqtt.Client, prefix string) *MQTTSink {
	return &MQTTSink{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: 1}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an entry of category is published on.
func (s *MQTTSink) Topic(category string) string {
	if category == "" {
		category = "general"
	}
	return s.prefix + "/activity/" + category
}

func (s *MQTTSink) Write(ctx context.Context, entry *models.ActivityLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.Topic(entry.Category), s.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return errors.Join(errors.New("mqtt: publish timed out"), ctx.Err())
	}
}

// Disconnect closes the broker connection.
func (s *MQTTSink) Disconnect() {
	s.client.Disconnect(250)
}
