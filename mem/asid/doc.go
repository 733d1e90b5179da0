// Package asid manages address-space identifiers: the hardware tags that
// let TLB entries of different address spaces coexist without a full flush
// on every context switch.
//
// # Generations
//
// There are 4096 ASID numbers. Once all are handed out the manager rolls
// over: it bumps its generation counter and marks every number free again,
// which logically invalidates every ASID issued before (an ASID is only
// valid while its generation matches the manager's). Flushing the TLB
// consequences of a rollover is the context-switch code's job, not this
// package's.
//
// # Reuse without invalidation
//
// Each number carries a "fresh" bit per generation: set until the number is
// handed out for the first time in the current generation. When an address
// space comes back with the ASID it held in the immediately previous
// generation and that number is still fresh, it gets the exact same number
// back with no TLB invalidation - no other address space can have touched
// translations tagged with it since. Any other assignment invalidates the
// tag before handing it out, because a different address space may have left
// stale translations behind.
//
// # Concurrency
//
// The manager does not lock itself. It is called around context switches
// with preemption disabled; the caller's scheduler lock already serializes
// every allocation decision.
package asid
