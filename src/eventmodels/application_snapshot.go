package eventmodels

import "time"

type ApplicationSnapshot struct {
	Timestamp                 time.Time
	APIRequestsTotal          float64
	APIRequestsSuccess        float64
	APIRequestsError          float64
	APIResponseTimeAvg        float64
	APIResponseTimeP95        float64
	APIResponseTimeP99        float64
	WebsocketConnections      float64
	WebsocketMessagesSent     float64
	WebsocketMessagesReceived float64
	WebsocketErrors           float64
	DBQueriesTotal            float64
	DBQueriesSlow             float64
	DBQueryTimeAvg            float64
	EventsIngested            float64
}

func (s ApplicationSnapshot) Samples() []MetricSample {
	fields := []struct {
		name  string
		value float64
	}{
		{"api_requests_total", s.APIRequestsTotal},
		{"api_requests_success", s.APIRequestsSuccess},
		{"api_requests_error", s.APIRequestsError},
		{"api_response_time_avg", s.APIResponseTimeAvg},
		{"api_response_time_p95", s.APIResponseTimeP95},
		{"api_response_time_p99", s.APIResponseTimeP99},
		{"websocket_connections", s.WebsocketConnections},
		{"websocket_messages_sent", s.WebsocketMessagesSent},
		{"websocket_messages_received", s.WebsocketMessagesReceived},
		{"websocket_errors", s.WebsocketErrors},
		{"db_queries_total", s.DBQueriesTotal},
		{"db_queries_slow", s.DBQueriesSlow},
		{"db_query_time_avg", s.DBQueryTimeAvg},
		{"events_ingested", s.EventsIngested},
	}

	samples := make([]MetricSample, 0, len(fields))
	for _, f := range fields {
		samples = append(samples, NewMetricSample(ApplicationNamespace, f.name, f.value, s.Timestamp))
	}

	return samples
}
