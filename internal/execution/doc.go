// Package execution hands confirmed geometry to the drawing arm.
//
// A Dispatcher splits a job's physical polylines into small chunks and
// sends them to an Executor one at a time, checking a StopSignal between
// chunks so a "stop" from the user takes effect quickly. Execution never
// touches memory: a failed chunk is logged and reported, and what was
// committed stays committed.
//
// Executors:
//
//   - SimulatedExecutor logs every move and keeps what it drew; used when
//     no arm is attached.
//   - NATSExecutor sends each chunk as a request to a plotter agent on a
//     NATS subject and waits for its acknowledgement.
//
// Agent is the plotter side of the NATS protocol: it subscribes to a
// device's subjects and forwards chunks to a local Executor.
package execution
