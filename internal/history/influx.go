package history

import (
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/joshp123/gohome-flipr/internal/config"
)

// Sink records time-series points.
type Sink interface {
	Write(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) error
	Close() error
}

// InfluxSink writes points to an InfluxDB 1.x database.
type InfluxSink struct {
	client   client.Client
	database string
}

func NewInfluxSink(cfg config.InfluxConfig) (*InfluxSink, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("influx addr is required")
	}

	var password string
	if cfg.PasswordFile != "" {
		secret, err := config.ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read influx password: %w", err)
		}
		password = secret
	}

	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: password,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("init influx client: %w", err)
	}

	return &InfluxSink{client: c, database: cfg.Database}, nil
}

func (s *InfluxSink) Write(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) error {
	if len(fields) == 0 {
		return nil
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.database,
		Precision: "s",
	})
	if err != nil {
		return fmt.Errorf("batch points: %w", err)
	}

	point, err := client.NewPoint(measurement, tags, fields, at)
	if err != nil {
		return fmt.Errorf("new point: %w", err)
	}
	bp.AddPoint(point)

	if err := s.client.Write(bp); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *InfluxSink) Close() error {
	return s.client.Close()
}

// Discard drops every point.
type Discard struct{}

func (Discard) Write(string, map[string]string, map[string]interface{}, time.Time) error { return nil }

func (Discard) Close() error { return nil }
