/*
Package stream provides flow-controlled streams: readable sources, writable
sinks, duplex channels and transforms that can be piped together with
back-pressure.

Core Concepts:

A Readable buffers chunks pushed by a producer and hands them to a
consumer. A Writable buffers chunks written by a producer and hands them,
one at a time, to a sink function. Both measure their buffer against a
high-water mark: Push and Write return false once the mark is reached, and
cooperating producers stop until they are asked for more (Readable) or until
drain is emitted (Writable).

Chunks are counted by length in byte mode ([]byte and string chunks, the
default for those types) and as 1 each in object mode.

Basic Usage:

	src := stream.FromSlice([]int{1, 2, 3, 4, 5})
	odd := stream.Filter(func(n int) bool { return n%2 == 1 })
	sink := stream.NewCollector[int]()

	if err := stream.Pipeline(ctx, src, odd, sink); err != nil {
		log.Fatal(err)
	}
	fmt.Println(sink.Items()) // [1 3 5]

Producing Data:

A Readable is fed through its Produce hook, which is called whenever the
buffer is below the low-water mark and someone is consuming:

	r, err := stream.NewReadable(stream.ReadableConfig[[]byte]{
		HighWaterMark: 64 * 1024,
		Produce: func(r *stream.Readable[[]byte], size int) {
			go func() {
				chunk, err := fetch(size)
				switch {
				case err != nil:
					r.Fail(err)
				case chunk == nil:
					r.PushEnd()
				default:
					r.Push(chunk)
				}
			}()
		},
	})

FromSlice, FromChannel, FromReader, FromSource, Generate and Empty build
common sources.

Consuming Data:

Attach a data listener (OnData) to receive chunks as they arrive, or call
Read to pull them. Pause and Resume control the flow. end is emitted once,
after the last chunk was consumed.

Writing Data:

	w, err := stream.NewWritable(stream.WritableConfig[[]byte]{
		Write: func(chunk []byte, done func(error)) {
			_, err := conn.Write(chunk)
			done(err)
		},
	})

	if ok, _ := w.Write(data); !ok {
		w.OnDrain(func() { ... })
	}
	w.End()

Collector, ForEach and ToChannel build common sinks.

Piping:

Pipe connects a readable to a writable and handles back-pressure: the
source pauses while the destination is full and resumes on drain. A
Transform or Duplex is both, so stages chain:

	src.Pipe(gzip)
	gzip.Pipe(file)

A source starts flowing when it is first piped. To fan out to several
destinations, attach them together with PipeAll so each one receives every
chunk; by default the source then pauses while any of them is full.

	src.PipeAll([]stream.Destination[[]byte]{archive, index})

Pipeline does the same for a list of stages, waits for the last one to
finish and destroys every stage on the first error.

Errors:

Every failure is a *errors.StreamError whose Kind tells where it happened:
production, consumption, transform or protocol (API misuse such as a write
after End). A failing stream emits error once, then close, and every
operation on it returns a protocol violation wrapping the original error.
An error with no listener at all panics with *events.UnhandledError.

Concurrency:

All methods are safe for concurrent use. Events of one stream are delivered
one at a time, in order. Produce, Write and Final hooks may complete from
any goroutine; they must not block the caller for long.
*/
package stream
