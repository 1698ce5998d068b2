package model

type WorkerSnapshot struct {
	ActiveJob   string `json:"active_job"`
	Pending     int    `json:"pending"`
	SinkName    string `json:"sink"`
	SinkReady   bool   `json:"sink_ready"`
	Subscribers int    `json:"subscribers"`
	Jobs        int    `json:"jobs"`
}
