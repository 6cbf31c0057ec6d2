/*
Package writer adapts an io.Writer into a flow-controlled byte stream.

Writer is a stream.Writable[[]byte]: it can be written to directly, piped
into, or used as the last stage of a stream.Pipeline. Chunks reach the
underlying writer in order, one at a time, off the caller's goroutine.

# Quick Start

	file, _ := os.Create("output.txt")
	w, err := writer.New(file)
	if err != nil {
		return err
	}

	w.WriteString("Hello, streaming world!\n")
	if err := w.Close(context.Background()); err != nil {
		return err
	}

# Configuration

Configure the buffer limit, retries and callbacks:

	config := writer.Config{
		HighWaterMark: 64 * 1024,              // Write returns false past 64KB
		MaxRetries:    3,                      // Retry failed writes
		RetryDelay:    100 * time.Millisecond, // First backoff step
		MaxRetryDelay: 2 * time.Second,        // Backoff ceiling
	}

	w, err := writer.NewWithConfig(conn, config)

# Backpressure Handling

Write reports false once the buffered bytes reach the high-water mark.
Wait for drain before writing more:

	ok, err := w.Write(data)
	if err != nil {
		return err
	}
	if !ok {
		drained := make(chan struct{})
		w.Once(events.Drain, func(any) { close(drained) })
		if w.NeedDrain() {
			<-drained
		}
	}

Or let a pipe do it:

	err := stream.Pipeline(ctx, stream.FromReader(conn), w)

# Retries

A failed write is retried with exponential backoff, resuming after partial
writes. Closed pipes and closed files are not retried. Once retries are
exhausted the stream is destroyed with a consumption error, OnError is
called, and Close returns the error.

# Monitoring

Track performance with callbacks:

	config := writer.Config{
		OnFlush: func(bytes int, duration time.Duration) {
			log.Printf("Wrote %d bytes in %v", bytes, duration)
		},
		OnError: func(err error) {
			log.Printf("Write error: %v", err)
		},
	}

or with Stats:

	stats := w.Stats()
	fmt.Printf("Written: %d bytes in %d chunks, %d retries\n",
		stats.BytesWritten, stats.WriteCount, stats.RetryCount)

# Graceful Shutdown

Close ends the stream and waits for every buffered chunk. If the
underlying writer has a Flush method, such as *bufio.Writer, it is called
before Close returns.

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		log.Printf("close: %v", err)
	}

# Thread Safety

Writer is safe for concurrent use from multiple goroutines.
*/
package writer
