/*
Package tracefs builds and installs Linux kernel event-histogram and
synthetic-event triggers through the ftrace/tracefs text protocol.

# Overview

The package is organized around two builders:

 1. HistogramDescriptor: binds a single trace event and accumulates keys,
    values, a sort order, a size hint, a name, and a filter expression.
    Serialize renders the descriptor to the exact "hist:keys=..." command
    line the kernel's trigger file expects; Install writes it, Show prints
    the shell command without touching the filesystem.

 2. SyntheticDescriptor: binds a start event and an end event and
    accumulates match-key pairs, compare expressions, recorded fields,
    two independent filters, and an ordered list of actions (a handler —
    onmatch/onmax/onchange — paired with a kind — trace/snapshot/save).
    Create installs the synthetic event definition plus both triggers
    using a three-stage rollback protocol; Destroy undoes it; Show prints
    the equivalent shell commands.

Both builders are transactional at the operation boundary: a failed
builder call leaves the descriptor exactly as it was before the call.

# Collaborators

	EventProvider  resolves (system, event) names to field metadata.
	FilterState    holds a running filter expression with its grammar
	               state and paren depth; the AppendFilter methods extend
	               it one token at a time.
	TraceFS        resolves tracing-pseudo-filesystem paths and performs
	               the file checks/appends the builders' Install/Create/
	               Destroy delegate to.

None of these mutate the events they describe; they are borrowed for the
lifetime of the descriptor that holds them.

# Concurrency

Descriptors are single-threaded: all builder methods assume one owner at
a time and are not safe for concurrent mutation. Serialization is a pure
function of descriptor state and may be called concurrently with other
readers once mutation has stopped.

# Build and test

	go test ./...

See cmd/tracefsctl for a small CLI that exercises the library end to end
against a real or a scratch tracing directory.
*/
package tracefs
