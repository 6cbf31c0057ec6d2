// Package metrics provides Prometheus instrumentation for streamcore streams.
//
// # Overview
//
// Every stream constructor accepts an optional *Registry. When one is set the
// stream reports:
//   - Chunks and bytes delivered by readable sides
//   - Chunks, bytes and per-chunk latency consumed by writable sides
//   - The buffered size of each side against its high-water mark
//   - Back-pressure (writes returning false) and drain signals
//   - Terminal errors, labelled by kind (production, consumption, transform, protocol)
//
// A nil *Registry records nothing, so instrumentation is opt-in per stream.
//
// # Quick Start
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	sink, _ := stream.NewWritable(stream.WritableConfig[[]byte]{
//		Name:    "upload",
//		Write:   upload,
//		Metrics: reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":9090", nil))
//
// # Available Metrics
//
//   - streamcore_readable_chunks_total: Chunks delivered by readable streams
//   - streamcore_readable_bytes_total: Bytes delivered by byte-mode readable streams
//   - streamcore_writable_chunks_total: Chunks consumed by writable streams
//   - streamcore_writable_bytes_total: Bytes consumed by byte-mode writable streams
//   - streamcore_writable_write_duration_seconds: Sink latency per chunk
//   - streamcore_stream_buffered_size: Buffered size per stream and side
//   - streamcore_backpressure_events_total: Writes that reached the high-water mark
//   - streamcore_backpressure_drains_total: Drain signals emitted
//   - streamcore_stream_errors_total: Terminal errors by kind
//
// # Labels
//
//   - stream_name: the Name given in the stream config
//   - side: "readable" or "writable"
//   - kind: the error kind of a terminal failure
//
// # Configuration
//
//	reg := metrics.NewRegistryWithConfig(metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "myapp",
//		Labels:    prometheus.Labels{"version": "1.0"},
//	})
package metrics
