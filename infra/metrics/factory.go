package metrics

import (
	"errors"

	"github.com/kilianp07/cellsim/core/factory"
	coremetrics "github.com/kilianp07/cellsim/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type promSinkConf struct {
	// ConstLabels are attached to every cell series, e.g. {"cell": "lgm50"}.
	ConstLabels map[string]string `json:"const_labels"`
}

type influxSinkConf struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// SkipHealthCheck returns the sink even when the server is unreachable.
	SkipHealthCheck bool `json:"skip_health_check"`
}

func newPromSinkFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c promSinkConf
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if len(c.ConstLabels) > 0 {
		reg = prometheus.WrapRegistererWith(prometheus.Labels(c.ConstLabels), reg)
	}
	return NewPromSinkWithRegistry(reg)
}

func newInfluxSinkFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c influxSinkConf
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" || c.Bucket == "" {
		return nil, errors.New("influx sink: url and bucket are required")
	}
	if c.SkipHealthCheck {
		return NewInfluxSink(c.URL, c.Token, c.Org, c.Bucket), nil
	}
	return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
}

func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	_ = coremetrics.RegisterMetricsSink("prometheus", newPromSinkFromConf)
	_ = coremetrics.RegisterMetricsSink("influx", newInfluxSinkFromConf)
}
