package handler

import (
	"errors"

	"github.com/driftlog/driftlog/pkg/storage/topic"
)

// ErrTopicNotFound indicates the requested topic does not exist.
var ErrTopicNotFound = errors.New("topic not found")

// Backend defines the interface for handling topic operations. Append and
// the topic lifecycle calls are internal Go API operations, not exposed on
// the wire; only GetTopic is reached from the Fetch dispatch path.
type Backend interface {
	// CreateTopic creates a new topic with the given number of partitions
	CreateTopic(name string, numPartitions int32) error

	// DeleteTopic deletes a topic
	DeleteTopic(name string) error

	// GetTopic retrieves a topic by name
	GetTopic(name string) (*topic.Topic, bool)

	// Append appends a message to a topic partition
	Append(topicName string, partition int32, key, value []byte) (int64, error)
}

// DirectBackend implements Backend by directly calling TopicManager
type DirectBackend struct {
	manager *topic.Manager
}

// NewDirectBackend creates a Backend that directly accesses the TopicManager
func NewDirectBackend(manager *topic.Manager) Backend {
	return &DirectBackend{manager: manager}
}

func (d *DirectBackend) CreateTopic(name string, numPartitions int32) error {
	return d.manager.CreateTopic(name, numPartitions, topic.DefaultTopicConfig())
}

func (d *DirectBackend) DeleteTopic(name string) error {
	return d.manager.DeleteTopic(name)
}

func (d *DirectBackend) GetTopic(name string) (*topic.Topic, bool) {
	return d.manager.GetTopic(name)
}

func (d *DirectBackend) Append(topicName string, partition int32, key, value []byte) (int64, error) {
	topic, exists := d.manager.GetTopic(topicName)
	if !exists {
		return -1, ErrTopicNotFound
	}
	return topic.Append(partition, key, value)
}
