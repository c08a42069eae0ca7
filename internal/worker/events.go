package worker

// DocumentMeta describes an uploaded document. The upload workflow owns its
// persistence; indexing only needs these fields.
type DocumentMeta struct {
	ID         int64  `json:"id"`
	OwnerID    int64  `json:"owner_id"`
	Title      string `json:"title"`
	MediaType  string `json:"media_type"`
	Size       int64  `json:"size"`
	StorageRef string `json:"storage_ref"`
}

// IndexTask is the index.task message body.
type IndexTask struct {
	Document      DocumentMeta `json:"document"`
	CorrelationID string       `json:"correlation_id"`
	// Attempt counts retries requested through the job API.
	Attempt int `json:"attempt,omitempty"`
}
