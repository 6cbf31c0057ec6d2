/*
Package streaming groups the stream packages of streamcore.

  - stream: Readable, Writable, Duplex and Transform streams, Pipe and Pipeline
  - buffer: high-water-mark aware chunk queue used by stream buffers
  - writer: io.Writer sink that retries failed writes with backoff
  - redisstream: Readable and Writable over Redis Streams (XREAD/XADD)
  - schedule: Readable of cron firing times

Basic usage:

	w, err := writer.New(file)
	if err != nil {
		return err
	}
	err = stream.Pipeline(ctx, stream.FromSlice(chunks), w)

Every stream reports failures through its error event; Pipeline and Finished
turn those events into returned errors.
*/
package streaming
