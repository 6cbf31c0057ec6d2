/*
Package redisstream connects Redis Streams to streamcore pipelines.

NewSource reads a stream with XREAD and emits its entries, in ID order, as
a stream.Readable. NewSink appends messages with XADD as a Writable. Both
accept any client with XRead and XAdd, so redis.Client,
redis.ClusterClient and redis.UniversalClient all work.

# Reading

By default a source starts at the beginning of the stream and ends once it
has caught up:

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	src, err := redisstream.NewSource(redisstream.SourceConfig{
		Redis:  rdb,
		Stream: "orders",
		Count:  500, // entries per XREAD
	})

Set Follow to keep waiting for new entries. Each XREAD then blocks for up
to Block; destroying the source cancels the pending call.

	src, err := redisstream.NewSource(redisstream.SourceConfig{
		Redis:   rdb,
		Stream:  "events",
		StartID: "$", // only entries added from now on
		Follow:  true,
	})

# Writing

	sink, err := redisstream.NewSink(redisstream.SinkConfig{
		Redis:  rdb,
		Stream: "orders:archive",
		MaxLen: 100000, // approximate trimming
	})
	err = stream.Pipeline(ctx, src, sink)

Failed XADD calls are retried with exponential backoff, each attempt bounded
by RedisTimeout. When retries are exhausted the sink fails with a
consumption error wrapping a *RedisError.

# Back-pressure

A source fetches the next batch only while its buffer is below the
high-water mark, so a slow consumer slows the XREAD loop instead of growing
memory. A sink reports back-pressure through Write like any Writable.
*/
package redisstream
