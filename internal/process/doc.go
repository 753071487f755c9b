// Package process supervises a single external child process.
//
// A Controller spawns the child, exchanges bytes with it through pipes or
// files, and reports its liveness without dedicating a goroutine to it.
// All progress is made by the caller: Poll performs one bounded
// status-and-read cycle, Wait repeats Poll until the child exits, and Run
// is Start followed by Wait.
//
// # Lifecycle
//
// A Controller moves from StateReady to StateRunning on Start and to
// StateTerminated once a status query reports that the child exited. A
// terminated Controller may be started again; runs never overlap.
//
//	ctrl, err := process.New(process.Config{Command: []string{"echo", "hello"}})
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Close()
//
//	code, err := ctrl.Run(ctx)
//	out, _ := ctrl.Output(process.Stdout) // "hello\n"
//
// # Channel strategies
//
// StrategyPipe connects stdout and stderr through anonymous pipes read
// without blocking and multiplexed with poll(2). StrategyFile redirects
// them into files inside a private workspace directory and tails those
// files with a second handle. StrategyFile is used unconditionally on
// platforms without poll(2).
//
// # Output cursors
//
// Each output channel keeps two offsets. Cumulative reads (Output,
// OutputText) return everything since the last ClearOutput. Incremental
// reads (IncrementalOutput, IncrementalOutputText) return everything since
// the previous read of either kind.
//
// # Timeouts
//
// Timeout and IdleTimeout are checked cooperatively from Poll and Wait. A
// child whose Controller is never polled again is not stopped by them.
// Stdin never delays these checks; see Input for how streams are read.
//
// # Thread Safety
//
// A Controller must not be used from more than one goroutine at a time.
package process
