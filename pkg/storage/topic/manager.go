package topic

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driftlog/driftlog/pkg/replication"
	"github.com/driftlog/driftlog/pkg/storage/log"
)

// Manager manages topics and their partitions
type Manager struct {
	dataDir   string
	topics    map[string]*Topic
	mu        sync.RWMutex
	logConfig log.LogConfig
	cleaner   *log.Cleaner

	// brokerID and clusterBrokers drive replica assignment for new topics.
	// A manager that never had SetClusterBrokers called behaves as a
	// single-node cluster: every partition is assigned brokerID alone.
	brokerID                 int32
	clusterBrokers           []int32
	defaultReplicationFactor int16
}

// Topic represents a topic with its partitions
type Topic struct {
	Name              string
	Partitions        map[int32]*log.Log
	ReplicationFactor int16
	// Replicas maps partitionID -> list of replica broker IDs
	Replicas map[int32][]int32
	// ISR maps partitionID -> list of in-sync replica broker IDs
	ISR map[int32][]int32
	// FollowerLEO tracks Log End Offset for each follower: partitionID -> brokerID -> LEO
	FollowerLEO map[int32]map[int32]int64
	// LastFetchTime tracks last fetch time for each follower: partitionID -> brokerID -> time
	LastFetchTime map[int32]map[int32]time.Time
	// ReplicaLagMaxMs is the max fetch-recency lag before eviction from ISR (default 10000ms)
	ReplicaLagMaxMs int64
	// ReplicaLagMaxMessages is the max offset lag before eviction from ISR (default 500)
	ReplicaLagMaxMessages int64
	// CleanupPolicy is "delete" or "compact", per §3/§4.4.
	CleanupPolicy string
	// RetentionMs is how long a record may live before delete-policy
	// retention removes it. -1 disables time-based retention.
	RetentionMs int64
	// MaxMessageBytes caps the size of a single record's value.
	MaxMessageBytes int32
	// MinInsyncReplicas is the ISR size below which the partition is
	// reported as under-replicated by HasEnoughReplicas.
	MinInsyncReplicas int32
	// FollowerLeaderID tracks, for a partition this broker replicates as a
	// follower, which broker it fetches from: partitionID -> leader broker ID.
	FollowerLeaderID map[int32]int32
	// FollowerFetchOffset tracks how far this broker's own follower fetch
	// loop has progressed for a partition: partitionID -> fetch_offset.
	FollowerFetchOffset map[int32]int64
	// FollowerLastFetchedEpoch tracks the leader epoch last observed by this
	// broker's follower fetch loop: partitionID -> leader_epoch.
	FollowerLastFetchedEpoch map[int32]int32
	mu                       sync.RWMutex
}

const (
	defaultReplicaLagMaxMessages = 500
	defaultReplicaLagTimeMaxMs   = 10000

	// CleanupPolicyDelete discards whole segments once they age out of
	// RetentionMs.
	CleanupPolicyDelete = "delete"
	// CleanupPolicyCompact retains the latest record per key indefinitely,
	// discarding older records with the same key.
	CleanupPolicyCompact = "compact"
)

// TopicConfig carries the per-topic knobs named in §3: cleanup policy,
// retention, message size, and the minimum in-sync replica count.
type TopicConfig struct {
	CleanupPolicy     string
	RetentionMs       int64
	MaxMessageBytes   int32
	MinInsyncReplicas int32
}

// DefaultTopicConfig returns the configuration CreateTopic applies when the
// caller has no specific requirements: delete-policy cleanup, 7-day
// retention, a 1MiB message cap, and a minimum ISR of 1 (no durability floor
// beyond the leader itself).
func DefaultTopicConfig() TopicConfig {
	return TopicConfig{
		CleanupPolicy:     CleanupPolicyDelete,
		RetentionMs:       7 * 24 * 60 * 60 * 1000,
		MaxMessageBytes:   1024 * 1024,
		MinInsyncReplicas: 1,
	}
}

// SetReplicationFactor updates the metadata replication factor
func (t *Topic) SetReplicationFactor(rf int16) {
	if rf <= 0 {
		rf = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReplicationFactor = rf
}

// SetReplicas updates replica assignments for a partition
func (t *Topic) SetReplicas(partitionID int32, replicas []int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Replicas == nil {
		t.Replicas = make(map[int32][]int32)
	}
	t.Replicas[partitionID] = replicas
	// Initialize ISR with all replicas (assume all in-sync initially)
	if t.ISR == nil {
		t.ISR = make(map[int32][]int32)
	}
	t.ISR[partitionID] = replicas
}

// GetReplicas returns replica assignment for a partition
func (t *Topic) GetReplicas(partitionID int32) []int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.Replicas == nil {
		return nil
	}
	return t.Replicas[partitionID]
}

// GetISR returns in-sync replicas for a partition
func (t *Topic) GetISR(partitionID int32) []int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ISR == nil {
		return nil
	}
	return t.ISR[partitionID]
}

// SetISR sets the in-sync replica set for a partition (for testing)
func (t *Topic) SetISR(partitionID int32, isr []int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ISR == nil {
		t.ISR = make(map[int32][]int32)
	}
	t.ISR[partitionID] = isr
}

// UpdateFollowerLEO updates the Log End Offset for a follower replica
func (t *Topic) UpdateFollowerLEO(partitionID int32, followerID int32, leo int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FollowerLEO == nil {
		t.FollowerLEO = make(map[int32]map[int32]int64)
	}
	if t.FollowerLEO[partitionID] == nil {
		t.FollowerLEO[partitionID] = make(map[int32]int64)
	}
	t.FollowerLEO[partitionID][followerID] = leo

	if t.LastFetchTime == nil {
		t.LastFetchTime = make(map[int32]map[int32]time.Time)
	}
	if t.LastFetchTime[partitionID] == nil {
		t.LastFetchTime[partitionID] = make(map[int32]time.Time)
	}
	t.LastFetchTime[partitionID][followerID] = time.Now()
}

// GetFollowerLEO returns the Log End Offset for a follower replica
func (t *Topic) GetFollowerLEO(partitionID int32, followerID int32) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.FollowerLEO == nil || t.FollowerLEO[partitionID] == nil {
		return 0, false
	}
	leo, exists := t.FollowerLEO[partitionID][followerID]
	return leo, exists
}

// GetLastFetchTime returns when a follower last fetched a partition.
func (t *Topic) GetLastFetchTime(partitionID int32, followerID int32) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.LastFetchTime == nil || t.LastFetchTime[partitionID] == nil {
		return time.Time{}, false
	}
	ts, exists := t.LastFetchTime[partitionID][followerID]
	return ts, exists
}

// UpdateISR updates the in-sync replica set for a partition based on lag
func (t *Topic) UpdateISR(partitionID int32, leaderLEO int64) []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	replicas := t.Replicas[partitionID]
	if replicas == nil || len(replicas) == 0 {
		return nil
	}

	lagMaxMs := t.ReplicaLagMaxMs
	if lagMaxMs <= 0 {
		lagMaxMs = defaultReplicaLagTimeMaxMs
	}
	lagMaxMessages := t.ReplicaLagMaxMessages
	if lagMaxMessages <= 0 {
		lagMaxMessages = defaultReplicaLagMaxMessages
	}

	newISR := make([]int32, 0, len(replicas))
	now := time.Now()

	// Leader is always in ISR
	leader := replicas[0]
	newISR = append(newISR, leader)

	// Check each follower
	for _, replicaID := range replicas[1:] {
		inSync := false

		// Follower must have both: caught up LEO AND recent fetch
		hasLEO := false
		hasFetch := false

		// Check if follower LEO is within the allowed offset lag
		if t.FollowerLEO != nil && t.FollowerLEO[partitionID] != nil {
			followerLEO, exists := t.FollowerLEO[partitionID][replicaID]
			if exists && leaderLEO-followerLEO <= lagMaxMessages {
				hasLEO = true
			}
		}

		// Check if follower fetched recently
		if t.LastFetchTime != nil && t.LastFetchTime[partitionID] != nil {
			lastFetch, exists := t.LastFetchTime[partitionID][replicaID]
			if exists && now.Sub(lastFetch).Milliseconds() <= lagMaxMs {
				hasFetch = true
			}
		}

		// Follower is in-sync if both LEO is caught up AND fetch is recent
		if hasLEO && hasFetch {
			inSync = true
		}

		if inSync {
			newISR = append(newISR, replicaID)
		}
	}

	// Update ISR if changed
	if t.ISR == nil {
		t.ISR = make(map[int32][]int32)
	}
	t.ISR[partitionID] = newISR

	return newISR
}

// GetLeaderForPartition returns the leader broker ID for a partition
func (t *Topic) GetLeaderForPartition(partitionID int32) (int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	replicas := t.Replicas[partitionID]
	if replicas == nil || len(replicas) == 0 {
		return -1, false
	}
	return replicas[0], true
}

// AddReplica appends brokerID to a partition's replica set. Idempotent: a
// broker already present leaves Replicas/ISR untouched, per §8 testable
// property #6.
func (t *Topic) AddReplica(partitionID int32, brokerID int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Replicas == nil {
		t.Replicas = make(map[int32][]int32)
	}
	for _, existing := range t.Replicas[partitionID] {
		if existing == brokerID {
			return
		}
	}
	t.Replicas[partitionID] = append(t.Replicas[partitionID], brokerID)

	if t.ISR == nil {
		t.ISR = make(map[int32][]int32)
	}
	t.ISR[partitionID] = append(t.ISR[partitionID], brokerID)
}

// SetLeader moves brokerID to the front of a partition's replica list,
// making it the leader. brokerID must already be a replica; a broker outside
// the replica set is a no-op.
func (t *Topic) SetLeader(partitionID int32, brokerID int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	replicas := t.Replicas[partitionID]
	idx := -1
	for i, r := range replicas {
		if r == brokerID {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}

	reordered := make([]int32, 0, len(replicas))
	reordered = append(reordered, brokerID)
	for i, r := range replicas {
		if i != idx {
			reordered = append(reordered, r)
		}
	}
	t.Replicas[partitionID] = reordered
}

// IsLeader reports whether brokerID is the current leader of partitionID.
func (t *Topic) IsLeader(partitionID int32, brokerID int32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	replicas := t.Replicas[partitionID]
	return len(replicas) > 0 && replicas[0] == brokerID
}

// ISRCount returns the size of a partition's in-sync replica set.
func (t *Topic) ISRCount(partitionID int32) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ISR[partitionID])
}

// HasEnoughReplicas reports whether a partition's ISR meets MinInsyncReplicas,
// per §4.4's has_enough_replicas.
func (t *Topic) HasEnoughReplicas(partitionID int32) bool {
	t.mu.RLock()
	minISR := t.MinInsyncReplicas
	isrCount := len(t.ISR[partitionID])
	t.mu.RUnlock()

	if minISR <= 0 {
		minISR = 1
	}
	return int32(isrCount) >= minISR
}

// IsFollowerInISR reports whether brokerID is currently in the in-sync
// replica set for partitionID, per §4.5 is_follower_in_isr.
func (t *Topic) IsFollowerInISR(partitionID int32, brokerID int32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, replicaID := range t.ISR[partitionID] {
		if replicaID == brokerID {
			return true
		}
	}
	return false
}

// AddFollowerPartition registers partitionID as one this broker replicates
// as a follower of leaderID, per §4.5 add_follower_partition. It is
// idempotent: re-adding the same partition just resets the tracked leader.
func (t *Topic) AddFollowerPartition(partitionID int32, leaderID int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FollowerLeaderID == nil {
		t.FollowerLeaderID = make(map[int32]int32)
	}
	t.FollowerLeaderID[partitionID] = leaderID

	if t.FollowerFetchOffset == nil {
		t.FollowerFetchOffset = make(map[int32]int64)
	}
	if _, exists := t.FollowerFetchOffset[partitionID]; !exists {
		t.FollowerFetchOffset[partitionID] = 0
	}

	if t.FollowerLastFetchedEpoch == nil {
		t.FollowerLastFetchedEpoch = make(map[int32]int32)
	}
	if _, exists := t.FollowerLastFetchedEpoch[partitionID]; !exists {
		t.FollowerLastFetchedEpoch[partitionID] = 0
	}
}

// UpdateFollowerFetch records this broker's own progress fetching partitionID
// as a follower, per §4.5 update_follower_fetch.
func (t *Topic) UpdateFollowerFetch(partitionID int32, fetchOffset int64, leaderEpoch int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FollowerFetchOffset == nil {
		t.FollowerFetchOffset = make(map[int32]int64)
	}
	t.FollowerFetchOffset[partitionID] = fetchOffset

	if t.FollowerLastFetchedEpoch == nil {
		t.FollowerLastFetchedEpoch = make(map[int32]int32)
	}
	t.FollowerLastFetchedEpoch[partitionID] = leaderEpoch
}

// GetFollowerFetchState returns this broker's own follower-side bookkeeping
// for a partition: the leader it fetches from, its fetch offset, and the
// last leader epoch it observed. ok is false if this broker is not tracking
// partitionID as a follower.
func (t *Topic) GetFollowerFetchState(partitionID int32) (leaderID int32, fetchOffset int64, leaderEpoch int32, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaderID, ok = t.FollowerLeaderID[partitionID]
	if !ok {
		return 0, 0, 0, false
	}
	return leaderID, t.FollowerFetchOffset[partitionID], t.FollowerLastFetchedEpoch[partitionID], true
}

// AddLeaderPartition registers this broker as the leader of partitionID with
// the given replica set, per §4.5 add_leader_partition.
func (t *Topic) AddLeaderPartition(partitionID int32, brokerID int32, replicas []int32) {
	t.SetReplicas(partitionID, replicas)
	t.SetLeader(partitionID, brokerID)
}

// UpdateLeaderOffset recomputes ISR membership for a partition against the
// leader's current high water mark, per §4.5 update_leader_offset.
func (t *Topic) UpdateLeaderOffset(partitionID int32) ([]int32, error) {
	leo, err := t.HighWaterMark(partitionID)
	if err != nil {
		return nil, err
	}
	return t.UpdateISR(partitionID, leo), nil
}

// EnforceRetention applies this topic's cleanup policy across every
// partition, per §4.4's enforce_retention(now_ms): delete-policy topics
// truncate segments older than RetentionMs, compact-policy topics run key
// compaction.
func (t *Topic) EnforceRetention(nowMs int64) error {
	t.mu.RLock()
	policy := t.CleanupPolicy
	retentionMs := t.RetentionMs
	partitions := make(map[int32]*log.Log, len(t.Partitions))
	for id, l := range t.Partitions {
		partitions[id] = l
	}
	t.mu.RUnlock()

	for partitionID, partitionLog := range partitions {
		switch policy {
		case CleanupPolicyCompact:
			if _, err := partitionLog.Compact(log.DefaultCompactionPolicy()); err != nil {
				return fmt.Errorf("compact partition %d: %w", partitionID, err)
			}
		default:
			if retentionMs <= 0 {
				continue
			}
			cutoff := nowMs - retentionMs
			if _, _, err := partitionLog.TruncateBeforeTimestamp(cutoff); err != nil {
				return fmt.Errorf("enforce retention on partition %d: %w", partitionID, err)
			}
		}
	}
	return nil
}

// NewManager creates a new topic manager
func NewManager(dataDir string, maxSegmentSize int64) *Manager {
	return &Manager{
		dataDir: dataDir,
		topics:  make(map[string]*Topic),
		logConfig: log.LogConfig{
			MaxSegmentSize: maxSegmentSize,
		},
		cleaner:                  nil, // Will be initialized by SetCleaner if needed
		brokerID:                 1,
		defaultReplicationFactor: 1,
	}
}

// SetCleaner sets the background cleaner for this manager
func (m *Manager) SetCleaner(cleaner *log.Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaner = cleaner
}

// SetClusterBrokers configures the broker identity and peer list used to
// round-robin replicas across the cluster for topics created afterward.
// brokers should include brokerID itself. An empty list leaves the manager
// in single-node mode, where every partition is assigned to brokerID alone.
func (m *Manager) SetClusterBrokers(brokerID int32, brokers []int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brokerID = brokerID
	m.clusterBrokers = brokers
}

// SetDefaultReplicationFactor sets the replication factor applied to topics
// created without an explicit one.
func (m *Manager) SetDefaultReplicationFactor(rf int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rf > 0 {
		m.defaultReplicationFactor = rf
	}
}

// CreateTopic creates a new topic with the specified number of partitions and
// configuration (cleanup policy, retention, message size cap, min ISR).
func (m *Manager) CreateTopic(name string, numPartitions int32, cfg TopicConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.topics[name]; exists {
		return fmt.Errorf("topic already exists: %s", name)
	}

	if cfg.CleanupPolicy != CleanupPolicyDelete && cfg.CleanupPolicy != CleanupPolicyCompact {
		cfg.CleanupPolicy = CleanupPolicyDelete
	}

	brokers := m.clusterBrokers
	if len(brokers) == 0 {
		brokers = []int32{m.brokerID}
	}
	replicationFactor := m.defaultReplicationFactor
	if int(replicationFactor) > len(brokers) {
		replicationFactor = int16(len(brokers))
	}

	assignments, err := replication.NewReplicaAssigner(brokers).AssignReplicas(numPartitions, replicationFactor)
	if err != nil {
		return fmt.Errorf("assign replicas: %w", err)
	}

	topic := &Topic{
		Name:              name,
		Partitions:        make(map[int32]*log.Log),
		Replicas:          make(map[int32][]int32),
		ISR:               make(map[int32][]int32),
		FollowerLEO:       make(map[int32]map[int32]int64),
		LastFetchTime:     make(map[int32]map[int32]time.Time),
		ReplicationFactor: replicationFactor,
		ReplicaLagMaxMs:   defaultReplicaLagTimeMaxMs,
		CleanupPolicy:     cfg.CleanupPolicy,
		RetentionMs:       cfg.RetentionMs,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MinInsyncReplicas: cfg.MinInsyncReplicas,
	}
	for partitionID, replicas := range assignments {
		topic.Replicas[partitionID] = replicas
		topic.ISR[partitionID] = replicas
	}

	// Create partitions
	for i := int32(0); i < numPartitions; i++ {
		partitionDir := filepath.Join(m.dataDir, name, fmt.Sprintf("partition-%d", i))

		logConfig := m.logConfig
		logConfig.Dir = partitionDir

		partition, err := log.NewLog(logConfig)
		if err != nil {
			return fmt.Errorf("create partition %d: %w", i, err)
		}
		topic.Partitions[i] = partition

		// Register with cleaner if available
		if m.cleaner != nil {
			logName := fmt.Sprintf("%s-%d", name, i)
			m.cleaner.RegisterLog(logName, partition, cfg.CleanupPolicy)
		}
	}

	if err := topic.saveMetadataLocked(m.dataDir); err != nil {
		return fmt.Errorf("save topic metadata: %w", err)
	}

	m.topics[name] = topic
	return nil
}

// DeleteTopic deletes a topic and all its partitions
func (m *Manager) DeleteTopic(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	topic, exists := m.topics[name]
	if !exists {
		return fmt.Errorf("topic not found: %s", name)
	}

	// Unregister from cleaner and close all partition logs
	for partitionID, partition := range topic.Partitions {
		if m.cleaner != nil {
			logName := fmt.Sprintf("%s-%d", name, partitionID)
			m.cleaner.UnregisterLog(logName)
		}
		if err := partition.Close(); err != nil {
			return fmt.Errorf("close partition: %w", err)
		}
	}

	// Remove topic data directory
	topicDir := filepath.Join(m.dataDir, name)
	if err := os.RemoveAll(topicDir); err != nil {
		return fmt.Errorf("remove topic directory: %w", err)
	}

	delete(m.topics, name)
	return nil
}

// GetTopic returns a topic by name
func (m *Manager) GetTopic(name string) (*Topic, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topic, exists := m.topics[name]
	return topic, exists
}

// ListTopics returns all topic names
func (m *Manager) ListTopics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.topics))
	for name := range m.topics {
		names = append(names, name)
	}
	return names
}

// Append appends a message to a topic partition
func (t *Topic) Append(partition int32, key, value []byte) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	log, exists := t.Partitions[partition]
	if !exists {
		return 0, fmt.Errorf("partition not found: %d", partition)
	}
	return log.Append(key, value)
}

// Read reads a message from a topic partition
func (t *Topic) Read(partition int32, offset int64) (*log.Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	partLog, exists := t.Partitions[partition]
	if !exists {
		return nil, fmt.Errorf("partition not found: %d", partition)
	}
	return partLog.ReadMessage(offset)
}

// ReadRange returns a zero-copy-transferable slice of a partition's active
// or sealed segment, for the segment/position/size the server loop sends
// straight from the file instead of through an intermediate buffer.
func (t *Topic) ReadRange(partition int32, offset int64, maxBytes int64) (*log.Segment, int64, int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	partLog, exists := t.Partitions[partition]
	if !exists {
		return nil, 0, 0, fmt.Errorf("partition not found: %d", partition)
	}
	return partLog.ReadRange(offset, maxBytes)
}

// HighWaterMark returns the high water mark for a partition
func (t *Topic) HighWaterMark(partition int32) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	log, exists := t.Partitions[partition]
	if !exists {
		return 0, fmt.Errorf("partition not found: %d", partition)
	}
	return log.HighWaterMark(), nil
}

// Size returns the total size in bytes of all partitions in this topic
func (t *Topic) Size() (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	totalSize := int64(0)
	for _, logInstance := range t.Partitions {
		size, err := logInstance.Size()
		if err != nil {
			return 0, fmt.Errorf("get partition size: %w", err)
		}
		totalSize += size
	}

	return totalSize, nil
}

// PartitionSize returns the size in bytes of a specific partition
func (t *Topic) PartitionSize(partition int32) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	logInstance, exists := t.Partitions[partition]
	if !exists {
		return 0, fmt.Errorf("partition not found: %d", partition)
	}

	return logInstance.Size()
}

// NumPartitions returns the number of partitions in this topic
func (t *Topic) NumPartitions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Partitions)
}

// GetEarliestOffset returns the earliest (oldest) available offset for a
// partition: the base offset of its oldest remaining segment. Retention and
// compaction both delete whole segments, so this drifts above 0 once either
// has run.
func (t *Topic) GetEarliestOffset(partition int32) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	partitionLog, exists := t.Partitions[partition]
	if !exists {
		return 0, fmt.Errorf("partition not found: %d", partition)
	}
	segments := partitionLog.GetSegments()
	if len(segments) == 0 {
		return 0, nil
	}
	return segments[0].BaseOffset, nil
}

// GetLatestOffset returns the latest (newest) available offset for a partition
// This is the same as HighWaterMark
func (t *Topic) GetLatestOffset(partition int32) (int64, error) {
	return t.HighWaterMark(partition)
}

// GetOffsetByTimestamp returns the earliest offset whose record timestamp is
// >= the given timestamp, via the segment time index. A timestamp past every
// record falls back to the high water mark.
func (t *Topic) GetOffsetByTimestamp(partition int32, timestamp int64) (int64, int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	partitionLog, exists := t.Partitions[partition]
	if !exists {
		return 0, 0, fmt.Errorf("partition not found: %d", partition)
	}

	offset, actualTimestamp, err := partitionLog.SearchByTimestamp(timestamp)
	if err != nil {
		hwm := partitionLog.HighWaterMark()
		return hwm, timestamp, nil
	}

	return offset, actualTimestamp, nil
}

// DeleteRecordsBeforeOffset deletes whole segments entirely below offset and
// returns the new low watermark. Deletion is segment-granular: if offset
// falls in the middle of the oldest remaining segment, the returned low
// watermark is that segment's base offset rather than offset itself.
func (t *Topic) DeleteRecordsBeforeOffset(partition int32, offset int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	partitionLog, exists := t.Partitions[partition]
	if !exists {
		return 0, fmt.Errorf("partition not found: %d", partition)
	}

	hwm := partitionLog.HighWaterMark()
	if offset > hwm {
		return hwm, fmt.Errorf("offset %d is beyond high watermark %d", offset, hwm)
	}

	return partitionLog.DeleteBeforeOffset(offset)
}

// Close closes all partitions
func (t *Topic) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for _, partition := range t.Partitions {
		if err := partition.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close partitions: %v", errs)
	}
	return nil
}

// Close closes all topics
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, topic := range m.topics {
		if err := topic.FlushState(m.dataDir); err != nil {
			errs = append(errs, err)
		}
		if err := topic.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close topics: %v", errs)
	}
	return nil
}

// FlushAllState writes a per-partition checkpoint for every topic, per §4.5
// flush_state. Unlike Close, the manager and its logs remain usable
// afterward; callers (e.g. a periodic replica-manager tick) can call this
// repeatedly.
func (m *Manager) FlushAllState() error {
	m.mu.RLock()
	topics := make([]*Topic, 0, len(m.topics))
	for _, topic := range m.topics {
		topics = append(topics, topic)
	}
	dataDir := m.dataDir
	m.mu.RUnlock()

	var errs []error
	for _, topic := range topics {
		if err := topic.FlushState(dataDir); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush topic state: %v", errs)
	}
	return nil
}
