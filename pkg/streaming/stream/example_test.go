package stream

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/vnykmshr/streamcore/pkg/events"
)

// Example demonstrates basic stream usage.
func Example() {
	// Pipe the odd numbers of a slice into a collector
	sink := NewCollector[int]()
	err := Pipeline(context.Background(),
		FromSlice([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}),
		Filter(func(x int) bool { return x%2 == 1 }),
		sink,
	)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Result: %v\n", sink.Items())
	// Output: Result: [1 3 5 7 9]
}

// Example_dataProcessing demonstrates a data processing pipeline.
func Example_dataProcessing() {
	// Sample data: user names
	users := []string{"john.doe", "jane.smith", "bob", "alice.brown"}

	emails, err := ToSlice[string](context.Background(),
		Pipe[string](
			Pipe[string](FromSlice(users), Filter(func(name string) bool { return strings.Contains(name, ".") })),
			Map(func(name string) string { return name + "@company.com" }),
		),
	)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	for _, email := range emails {
		fmt.Println(email)
	}
	// Output:
	// john.doe@company.com
	// jane.smith@company.com
	// alice.brown@company.com
}

// Example_textProcessing splits a byte stream into lines.
func Example_textProcessing() {
	src := FromReader(strings.NewReader("alpha\nbeta\r\ngamma"), WithChunkSize(3))
	sink := ForEach(func(line string) error {
		fmt.Println(line)
		return nil
	})

	err := Pipeline(context.Background(), src, Lines(), Map(strings.ToUpper), sink)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	// Output:
	// ALPHA
	// BETA
	// GAMMA
}

// Example_batches groups records before handing them to a bulk writer.
func Example_batches() {
	sink := ForEach(func(batch []int) error {
		fmt.Println(batch)
		return nil
	})

	err := Pipeline(context.Background(), FromSlice([]int{1, 2, 3, 4, 5}), Batch[int](2), sink)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	// Output:
	// [1 2]
	// [3 4]
	// [5]
}

// ExampleNewTransform builds a custom transform with a flush step.
func ExampleNewTransform() {
	total := 0
	sum, err := NewTransform(TransformConfig[int, string]{
		Transform: func(n int, push func(string) bool, done func(error)) {
			total += n
			push(fmt.Sprintf("+%d", n))
			done(nil)
		},
		Flush: func(push func(string) bool, done func(error)) {
			push(fmt.Sprintf("=%d", total))
			done(nil)
		},
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	out, err := ToSlice[string](context.Background(), Pipe[int](FromSlice([]int{4, 5, 6}), sum))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(strings.Join(out, " "))
	// Output: +4 +5 +6 =15
}

// ExampleWritable_Write waits for drain whenever Write reports a full buffer.
func ExampleWritable_Write() {
	var stored atomic.Int64
	w, err := NewWritable(WritableConfig[int]{
		HighWaterMark: 4,
		Write: func(_ int, done func(error)) {
			go func() {
				stored.Add(1)
				done(nil)
			}()
		},
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	drained := make(chan struct{}, 1)
	w.OnDrain(func() {
		select {
		case drained <- struct{}{}:
		default:
		}
	})
	finished := make(chan struct{})
	w.Once(events.Finish, func(any) { close(finished) })

	for i := 0; i < 1000; i++ {
		ok, err := w.Write(i)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if !ok {
			<-drained
		}
	}
	_ = w.End()
	<-finished

	fmt.Println("stored", stored.Load())
	// Output: stored 1000
}
