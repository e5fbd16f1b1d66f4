// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask 描述一次文件摄取任务。
// FileID 同时作为任务状态与消费重试计数的键。
type IngestTask struct {
	FileID    string `json:"file_id"`
	BrainID   string `json:"brain_id"`
	FileName  string `json:"file_name"`
	ObjectKey string `json:"object_key"`
}
