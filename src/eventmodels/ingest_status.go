package eventmodels

type IngestStatus struct {
	Running bool           `json:"running"`
	Sources []SourceHealth `json:"sources"`
	Issues  []string       `json:"issues"`
}
