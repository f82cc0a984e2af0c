package notify

import (
	"context"
	"fmt"

	"water_timer/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxMeasurement = "watering_event"

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxWriter records every event as a point, tagged by type and valve.
type InfluxWriter struct {
	client influxdb2.Client
	api    pointWriter
	valve  string
}

func NewInfluxWriter(cfg InfluxConfig, valve string) *InfluxWriter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		client: client,
		api:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		valve:  valve,
	}
}

func (w *InfluxWriter) Name() string { return "influx" }

func (w *InfluxWriter) Write(ctx context.Context, ev models.WateringEvent) error {
	if err := w.api.WritePoint(ctx, eventPoint(ev, w.valve)); err != nil {
		return fmt.Errorf("write influx point: %w", err)
	}
	return nil
}

func (w *InfluxWriter) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

// eventPoint copies scalar metadata values into point fields.
func eventPoint(ev models.WateringEvent, valve string) *write.Point {
	tags := map[string]string{
		"type":  ev.Type,
		"valve": valve,
	}
	fields := map[string]interface{}{
		"description": ev.Description,
		"count":       1,
	}
	if meta, ok := ev.Metadata.(map[string]any); ok {
		for k, v := range meta {
			switch v.(type) {
			case int, int32, int64, float32, float64, bool, string:
				if _, taken := fields[k]; !taken {
					fields[k] = v
				}
			}
		}
	}
	return influxdb2.NewPoint(influxMeasurement, tags, fields, ev.OccurredAt)
}
