// Package monitoring 提供进程内指标收集
package monitoring

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"exitforecast/ml"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// 每个序列保留的历史样本数
const maxSamples = 1000

// Metric 指标样本
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// Summary 序列摘要
type Summary struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Labels    map[string]string `json:"labels,omitempty"`
	Count     int64             `json:"count"`
	Sum       float64           `json:"sum"`
	Latest    float64           `json:"latest"`
	Min       float64           `json:"min"`
	Max       float64           `json:"max"`
	Average   float64           `json:"average"`
	Timestamp time.Time         `json:"timestamp"`
}

type series struct {
	name    string
	typ     MetricType
	labels  map[string]string
	help    string
	samples []float64
	count   int64
	sum     float64
	min     float64
	max     float64
	updated time.Time
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	series      map[string]*series
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		series:    make(map[string]*series),
		startTime: time.Now(),
	}
}

// RecordMetric 记录指标
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	key := seriesKey(metric.Name, metric.Labels)

	s, ok := mc.series[key]
	if !ok {
		s = &series{
			name:   metric.Name,
			typ:    metric.Type,
			labels: copyLabels(metric.Labels),
			help:   metric.Help,
			min:    metric.Value,
			max:    metric.Value,
		}
		mc.series[key] = s
	}

	s.samples = append(s.samples, metric.Value)
	// 限制历史大小
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}
	s.count++
	s.sum += metric.Value
	if metric.Value < s.min {
		s.min = metric.Value
	}
	if metric.Value > s.max {
		s.max = metric.Value
	}
	s.updated = metric.Timestamp
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeCounter, Value: value, Labels: labels})
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels})
}

// RecordHistogram 记录直方图样本
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeHistogram, Value: value, Labels: labels})
}

// GetMetricSummary 获取指标摘要
func (mc *MetricsCollector) GetMetricSummary(name string, labels map[string]string) (Summary, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	s, ok := mc.series[seriesKey(name, labels)]
	if !ok {
		return Summary{}, fmt.Errorf("metric %s not found", seriesKey(name, labels))
	}
	return s.summary(), nil
}

// Snapshot 返回所有序列的摘要，按名称排序
func (mc *MetricsCollector) Snapshot() []Summary {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	keys := make([]string, 0, len(mc.series))
	for key := range mc.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Summary, 0, len(keys))
	for _, key := range keys {
		result = append(result, mc.series[key].summary())
	}
	return result
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	described := make(map[string]bool)

	for _, s := range mc.Snapshot() {
		if !described[s.Name] {
			described[s.Name] = true
			fmt.Fprintf(&b, "# TYPE %s %s\n", s.Name, promType(s.Type))
		}
		labels := formatLabels(s.Labels)
		switch s.Type {
		case MetricTypeCounter:
			fmt.Fprintf(&b, "%s%s %g\n", s.Name, labels, s.Sum)
		case MetricTypeHistogram:
			fmt.Fprintf(&b, "%s_sum%s %g\n", s.Name, labels, s.Sum)
			fmt.Fprintf(&b, "%s_count%s %d\n", s.Name, labels, s.Count)
		default:
			fmt.Fprintf(&b, "%s%s %g\n", s.Name, labels, s.Latest)
		}
	}
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"heap_alloc": m.HeapAlloc,
			"heap_sys":   m.HeapSys,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

// ObservePrediction 记录一次预测调用
func (mc *MetricsCollector) ObservePrediction(kind string, rows int, elapsed time.Duration, err error) {
	labels := map[string]string{"kind": kind}
	mc.IncrCounter("prediction_requests_total", 1, labels)
	mc.IncrCounter("prediction_rows_total", float64(rows), labels)
	mc.RecordHistogram("prediction_latency_seconds", elapsed.Seconds(), labels)
	if err != nil {
		mc.IncrCounter("prediction_errors_total", 1, map[string]string{"kind": kind, "reason": errorReason(err)})
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ml.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ml.ErrFeatureImportanceUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

func (s *series) summary() Summary {
	avg := 0.0
	if s.count > 0 {
		avg = s.sum / float64(s.count)
	}
	latest := 0.0
	if len(s.samples) > 0 {
		latest = s.samples[len(s.samples)-1]
	}
	return Summary{
		Name:      s.name,
		Type:      s.typ,
		Labels:    copyLabels(s.labels),
		Count:     s.count,
		Sum:       s.sum,
		Latest:    latest,
		Min:       s.min,
		Max:       s.max,
		Average:   avg,
		Timestamp: s.updated,
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func promType(t MetricType) string {
	if t == MetricTypeHistogram {
		return "summary"
	}
	return string(t)
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
