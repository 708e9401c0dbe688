// Package trap turns machine faults raised by guest code into Go errors.
//
// A fault caught by the platform signal layer cannot unwind through guest
// frames directly: the guest stack uses a foreign ABI and holds no Go
// recovery machinery. Instead the fault handler rewrites the interrupted
// register context so that resuming it calls a synthetic hostcall. That
// handler runs on the faulted stack, restores the displaced registers,
// captures a backtrace of the guest frames, and unwinds to the host caller
// by panicking with a *Trap.
//
// # Activations
//
// Every call into Wasm opens an Activation via Enter, carried by the
// context.Context that scopes the call. The activation records the register
// state at transitions out of guest code and links to the activation that
// was live when it was entered, forming the chain the backtrace walker
// consumes. There is no thread-local state anywhere in the path.
//
// # Injection
//
// InjectCall displaces the pc and the first two argument registers, saving
// the previous values in a single pending slot on the activation; the slot
// must be drained by RestoreInjected before a second injection is legal.
// HandleFault packages the common sequence: record exit state, stash the
// fault description, inject InjectedEntryPC with the activation as the
// argument.
//
// # Delivery
//
// InjectedHandler builds the *Trap, notifies subscribed observers with the
// store the activation was entered with, and panics. Boundary pairs with it
// at the entry side, converting the panic back into a value. Traps are
// errors: a guest fault never crashes the embedding process.
package trap
