package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/cellsim/core/metrics"
	"github.com/kilianp07/cellsim/infra/logger"
)

// InfluxSink writes simulation telemetry to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordStep writes a cell_step point.
func (s *InfluxSink) RecordStep(rec coremetrics.StepRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("cell_step").
		AddTag("session_id", rec.SessionID).
		AddTag("cutoff_reached", strconv.FormatBool(rec.CutoffReached)).
		AddField("sim_time_s", round6(rec.SimTime)).
		AddField("current_a", round6(rec.CurrentA)).
		AddField("voltage_v", round6(rec.VoltageV)).
		AddField("ocv_v", round6(rec.OCVV)).
		AddField("soc_percent", round6(rec.SoCPercent)).
		AddField("v_r1", round6(rec.VR1)).
		AddField("v_r2", round6(rec.VR2)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFailure writes a cell_failure point.
func (s *InfluxSink) RecordFailure(rec coremetrics.FailureRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("cell_failure").
		AddTag("session_id", rec.SessionID).
		AddTag("kind", rec.Kind).
		AddField("error", rec.Error).
		AddField("current_a", rec.CurrentA).
		AddField("dt_s", rec.DtS).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAdjustment writes a cell_soc_adjustment point.
func (s *InfluxSink) RecordAdjustment(rec coremetrics.AdjustmentRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("cell_soc_adjustment").
		AddTag("session_id", rec.SessionID).
		AddField("from", rec.From).
		AddField("to", rec.To).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
