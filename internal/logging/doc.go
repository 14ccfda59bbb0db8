// Package logging provides structured logging for nvuectl.
//
// The package holds one global zap logger. It is silent until Initialize is
// called with a level or NVUE_LOG_LEVEL is set, so command output stays clean
// by default.
//
// # Log Levels
//
//   - Debug: every HTTP round trip, staged payloads, poll results
//   - Info: transaction outcomes, sandbox startup
//   - Warn: applies that did not finish within the wait budget
//   - Error: failures that abort a command
//
// # Usage
//
//	if err := logging.Initialize(flagLogLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	client := nvue.NewClient(conn, nvue.WithLogger(logging.ForDevice("leaf01")))
//
// Logs are written to stderr in console format.
package logging
