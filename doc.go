/*
Package streamcore provides push/pull streams for Go with back-pressure,
typed events and composable pipelines.

Core (pkg/streaming/stream):
  - Readable, Writable, Duplex and Transform streams with high-water marks
  - Pipe and Pipeline to connect stages with flow control and error propagation
  - Sources, sinks and operations: FromSlice, FromReader, Map, Filter, Lines, Batch

Supporting packages:
  - events: ordered event emitter used by every stream
  - streaming/buffer: the chunk queue behind stream buffers
  - streaming/writer: io.Writer sink with retries
  - streaming/redisstream: Redis Streams source and sink
  - streaming/schedule: cron-driven tick source
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/vnykmshr/streamcore/pkg/streaming/stream"
		"github.com/vnykmshr/streamcore/pkg/streaming/writer"
	)

	out, _ := writer.New(os.Stdout)
	err := stream.Pipeline(ctx,
		stream.FromReader(os.Stdin),
		stream.Lines(),
		stream.Map(func(line string) []byte { return []byte(strings.ToUpper(line) + "\n") }),
		out,
	)
*/
package streamcore
