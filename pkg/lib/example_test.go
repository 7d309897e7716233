package lib_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/autotask/pkg/lib"
)

// This example shows how to create a client with the fake runtime for testing.
func Example_testing() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "autotask-example-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath:  filepath.Join(dir, "autotask.db"),
		Runtime: lib.RuntimeFake,
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{
		Text:  "remind me to call mom tomorrow",
		Start: true,
	})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Intent: %s\n", res.Classification.IntentType)
	fmt.Printf("Status: %s\n", res.Task.Status)

	// Output:
	// Intent: TODO
	// Status: completed
}

// This example shows a supervised flow where every step waits for a human approval.
func Example_approval() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "autotask-example-approval-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath:  filepath.Join(dir, "autotask.db"),
		Runtime: lib.RuntimeFake,
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{
		Text:  "remind me to call mom tomorrow",
		Mode:  lib.ExecutionModeManual,
		Start: true,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Status: %s\n", res.Task.Status)

	pending, err := client.ListPending(ctx, res.Task.ID)
	if err != nil {
		panic(err)
	}
	for _, a := range pending.Approvals {
		fmt.Printf("Waiting on approval of step %d (%s)\n", a.StepIndex, a.Action)
	}

	// Output:
	// Status: waiting_approval
	// Waiting on approval of step 0 (create_record)
}

// This example shows how to check for specific error types.
func Example_errorHandling() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "autotask-example-errors-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath: filepath.Join(dir, "autotask.db"),
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	_, err = client.GetTask(ctx, "does-not-exist")
	if errors.Is(err, lib.ErrNotFound) {
		fmt.Println("Task not found")
	}

	// Output:
	// Task not found
}
