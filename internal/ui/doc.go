// Package ui renders nvuectl's pretty output.
//
// Components follow a "run once and exit" pattern: a Header before the
// command, step lines while a transaction progresses, then a Result box and,
// for reads, a Document box with the response body. Nothing here waits for
// user input except Confirm.
//
// TransactionRunner is an nvue.Observer. Register it on the client and call
// Begin and Finish around the transaction:
//
//	runner := ui.NewTransactionRunner(ui.RunnerConfig{
//	    Title:   "Set configuration",
//	    Command: "nvuectl set router",
//	    Device:  "leaf01",
//	    Wait:    10,
//	})
//	client := nvue.NewClient(conn, nvue.WithObserver(runner))
//
//	runner.Begin()
//	resp, err := client.Set(ctx, "router", data, nvue.Options{Wait: 10})
//	runner.Finish(resp, err)
//
// Logging goes to stderr through internal/logging and is silent unless
// NVUE_LOG_LEVEL is set, so it never mixes with this output.
package ui
