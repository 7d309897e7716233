// Package lib provides a Go SDK for running autonomous tasks programmatically.
//
// A task starts as a natural language request. The request is classified into
// an intent, compiled into an execution plan of typed steps and executed step
// by step. Every step goes through the safety engine before it runs, risky steps
// wait for a human approval and decision steps wait for a human answer.
//
// # Quick Start
//
// Create a client, create a task and run it:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{
//	    Text:  "send an email to bob@example.com with the weekly report",
//	    Start: true,
//	})
//	if res.NeedsClarification() {
//	    fmt.Println(res.Classification.ClarificationQuestion)
//	}
//
// # Execution Modes
//
// The mode sets which steps need a human approval:
//
//   - [ExecutionModeAutonomous]: Only critical risk steps.
//   - [ExecutionModeSupervised]: High and critical risk steps (default).
//   - [ExecutionModeManual]: Every step.
//
// Set [CreateTaskOpts].RequirePlanApproval to also approve the whole plan before
// the first step runs.
//
// # Approvals and Decisions
//
// A task waiting on a human is in [TaskStatusWaitingApproval]. List what is
// pending and resolve it, the task continues in the same call:
//
//	pending, _ := client.ListPending(ctx, taskID)
//	for _, a := range pending.Approvals {
//	    client.Approve(ctx, lib.ApproveOpts{ApprovalID: a.ID, Approver: "alice"})
//	}
//	for _, d := range pending.Decisions {
//	    client.Decide(ctx, lib.DecideOpts{DecisionID: d.ID, Option: d.Options[0].ID, By: "alice"})
//	}
//
// Approvals follow the approval chain of the step risk configured in the policy,
// a chain can have several levels that must approve in order. Gates that nobody
// resolves expire with their default action. Expiration only happens on
// [Client.Sweep], long running applications should call it periodically.
//
// # Lifecycle
//
//	client.PauseTask(ctx, taskID)
//	client.ResumeTask(ctx, taskID)
//	client.CancelTask(ctx, taskID)
//
// Running tasks stop at the next step boundary, never in the middle of a step.
//
// # Audit
//
// Every safety evaluation is recorded:
//
//	entries, _ := client.Audit(ctx, lib.AuditOpts{TaskID: taskID})
//	for _, e := range entries {
//	    fmt.Printf("step %d %s: %s (%s risk)\n", e.StepIndex, e.Action, e.Outcome, e.Risk)
//	}
//
// # Language Models
//
// By default an offline keyword model classifies the requests and built-in
// templates create the plans. Set [Config].Model to use a remote model:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    Model: &lib.ModelConfig{Provider: "openai", Name: "gpt-4o-mini"},
//	})
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrAlreadyExists]: Resource with the same ID already exists.
//   - [ErrNotValid]: Invalid input or operation (e.g. resuming a task that isn't paused).
//   - [ErrConflict]: The task changed concurrently, the operation can be retried.
//   - [ErrAlreadyResolved]: The approval or decision was already resolved.
//
// # Testing
//
// Use [RuntimeFake] and a temporary database path to write tests without
// real infrastructure:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    DBPath:  filepath.Join(t.TempDir(), "test.db"),
//	    Runtime: lib.RuntimeFake,
//	})
//	defer client.Close()
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. The underlying
// storage uses SQLite with WAL mode and task updates are serialized per task.
package lib
