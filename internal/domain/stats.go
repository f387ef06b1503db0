package domain

import "time"

// ─── Node-Local Statistics ──────────────────────────────────────────────────
// Each member reports these for the objects it hosts. They describe only the
// member's own share; cluster totals are computed by the stats producer.

// ExecutorStats are task-execution counters for a named executor.
type ExecutorStats struct {
	Pending            int64         `json:"pending"`
	Started            int64         `json:"started"`
	Completed          int64         `json:"completed"`
	Failed             int64         `json:"failed"`
	Cancelled          int64         `json:"cancelled"`
	TotalStartLatency  time.Duration `json:"total_start_latency"`
	TotalExecutionTime time.Duration `json:"total_execution_time"`
}

// QueueStats are depth and operation counters for a queue partition.
// Ages are measured from offer to sample time.
type QueueStats struct {
	OwnedItemCount  int64         `json:"owned_item_count"`
	BackupItemCount int64         `json:"backup_item_count"`
	MinAge          time.Duration `json:"min_age"`
	MaxAge          time.Duration `json:"max_age"`
	AverageAge      time.Duration `json:"average_age"`
	Offers          int64         `json:"offers"`
	RejectedOffers  int64         `json:"rejected_offers"`
	Polls           int64         `json:"polls"`
	EmptyPolls      int64         `json:"empty_polls"`
	OtherOperations int64         `json:"other_operations"`
	Events          int64         `json:"events"`
	CreationTime    time.Time     `json:"creation_time"`
}

// TopicStats are publish/receive counters for a topic.
type TopicStats struct {
	Publishes    int64     `json:"publishes"`
	Receives     int64     `json:"receives"`
	CreationTime time.Time `json:"creation_time"`
}
