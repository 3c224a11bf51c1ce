// Package asyncio tracks in-flight asynchronous operations issued against
// an external storage runtime. Callers batch-submit operations into an
// EventSet, later wait on their joint completion against a shared deadline,
// and inspect per-operation failure diagnostics long after the issuing call
// has returned.
//
// The package does not perform I/O itself. It correlates completions
// reported by a caller-supplied Runtime with the internal identity
// ([OperationRecord].Counter) assigned at submission time.
package asyncio
