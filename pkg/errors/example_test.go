// Package errors provides examples of structured error handling in slotpool.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Example demonstrates basic error creation with context.
func Example() {
	err := errors.New(errors.ErrorTypeContract, "slot freed twice").
		WithDetail("pool", "orders").
		WithDetail("handle", 17)

	fmt.Println(err.Error())

	// Output:
	// contract: slot freed twice
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeFile, "failed to read config").
		WithDetail("path", "slotpool.yaml")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	fmt.Println(err)

	// Output:
	// This is a file error
	// file: failed to read config: EOF
}

// ExampleFromPanic shows how to inspect a contract violation raised by a pool.
func ExampleFromPanic() {
	defer func() {
		if e, ok := errors.FromPanic(recover()); ok {
			fmt.Println(e.Type)
		}
	}()

	panic(errors.New(errors.ErrorTypeClosed, "pool is closed"))

	// Output:
	// closed
}
