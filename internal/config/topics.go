package config

const (
	// TopicIndexTask is the NSQ topic for document indexing tasks.
	TopicIndexTask = "index.task"

	// ChannelIndexer is the NSQ channel the index workers consume from.
	ChannelIndexer = "indexer"
)
