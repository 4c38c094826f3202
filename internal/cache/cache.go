package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/webpods-org/webpods/internal/db"
)

// PoolTTLs mirrors config.CachePoolTTLs without importing internal/config,
// keeping this package dependency-free of the config layer.
type PoolTTLs struct {
	PodsSeconds          int
	StreamsSeconds       int
	SingleRecordsSeconds int
	RecordListsSeconds   int
}

// Cache bundles the four pools spec.md §4.8 names. internal/api invalidates
// the affected entries after each committed write; no handler reads
// through the pools, so every read goes to internal/db.
type Cache struct {
	Pods          *Pool[*db.Pod]
	Streams       *Pool[*db.Stream]
	SingleRecords *Pool[*db.Record]
	RecordLists   *Pool[[]*db.Record]
}

func New(backend Backend, ttls PoolTTLs) *Cache {
	return &Cache{
		Pods:          NewPool[*db.Pod](backend, time.Duration(ttls.PodsSeconds)*time.Second),
		Streams:       NewPool[*db.Stream](backend, time.Duration(ttls.StreamsSeconds)*time.Second),
		SingleRecords: NewPool[*db.Record](backend, time.Duration(ttls.SingleRecordsSeconds)*time.Second),
		RecordLists:   NewPool[[]*db.Record](backend, time.Duration(ttls.RecordListsSeconds)*time.Second),
	}
}

func PodKey(podName string) string { return podName }

func StreamKey(podName, streamPath string) string { return fmt.Sprintf("%s:%s", podName, streamPath) }

func streamPrefix(podName string) string { return podName + ":" }

func RecordKey(streamID, name string) string { return fmt.Sprintf("%s:%s", streamID, name) }

func recordPrefix(streamID string) string { return streamID + ":" }

func RecordListKey(streamID string, unique bool, limit int, after int64) string {
	return fmt.Sprintf("%s:%v:%d:%d", streamID, unique, limit, after)
}

func recordListPrefix(streamID string) string { return streamID + ":" }

// InvalidatePod flushes the pod entry and every stream entry of the pod.
// Record and record-list entries are keyed by stream ID and are not
// flushed here.
func (c *Cache) InvalidatePod(ctx context.Context, podName string) {
	c.Pods.Delete(ctx, PodKey(podName))
	c.Streams.DeletePrefix(ctx, streamPrefix(podName))
}

// InvalidateStream flushes the stream entry and its dependent record and
// record-list keys, per spec.md §4.8's "stream change" rule.
func (c *Cache) InvalidateStream(ctx context.Context, podName, streamPath, streamID string) {
	c.Streams.Delete(ctx, StreamKey(podName, streamPath))
	c.SingleRecords.DeletePrefix(ctx, recordPrefix(streamID))
	c.RecordLists.DeletePrefix(ctx, recordListPrefix(streamID))
}

// InvalidateRecord flushes the specific record entry and every list key
// for the stream, per spec.md §4.8's "record append/delete" rule.
func (c *Cache) InvalidateRecord(ctx context.Context, streamID, name string) {
	c.SingleRecords.Delete(ctx, RecordKey(streamID, name))
	c.RecordLists.DeletePrefix(ctx, recordListPrefix(streamID))
}
