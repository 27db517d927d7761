// Package directory defines the agent record and the capability interface
// the host application implements for live agent state.
//
// The coordinator and hook handlers never own agent records; they read and
// mutate them through the Directory interface. MemoryDirectory is the
// in-process implementation used by tests and by the server when run
// without a host application.
package directory
