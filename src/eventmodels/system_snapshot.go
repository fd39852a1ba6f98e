package eventmodels

import "time"

type SystemSnapshot struct {
	Timestamp          time.Time
	CPUUsage           float64
	CPULoad1m          float64
	CPULoad5m          float64
	CPULoad15m         float64
	MemoryUsage        float64
	MemoryUsed         float64
	MemoryAvailable    float64
	MemoryTotal        float64
	DiskUsage          float64
	DiskUsed           float64
	DiskFree           float64
	DiskTotal          float64
	NetworkIn          float64
	NetworkOut         float64
	NetworkConnections float64
	ProcessCount       float64
}

func (s SystemSnapshot) Samples() []MetricSample {
	fields := []struct {
		name  string
		value float64
	}{
		{"cpu_usage", s.CPUUsage},
		{"cpu_load_1m", s.CPULoad1m},
		{"cpu_load_5m", s.CPULoad5m},
		{"cpu_load_15m", s.CPULoad15m},
		{"memory_usage", s.MemoryUsage},
		{"memory_used", s.MemoryUsed},
		{"memory_available", s.MemoryAvailable},
		{"memory_total", s.MemoryTotal},
		{"disk_usage", s.DiskUsage},
		{"disk_used", s.DiskUsed},
		{"disk_free", s.DiskFree},
		{"disk_total", s.DiskTotal},
		{"network_in", s.NetworkIn},
		{"network_out", s.NetworkOut},
		{"network_connections", s.NetworkConnections},
		{"process_count", s.ProcessCount},
	}

	samples := make([]MetricSample, 0, len(fields))
	for _, f := range fields {
		samples = append(samples, NewMetricSample(SystemNamespace, f.name, f.value, s.Timestamp))
	}

	return samples
}
