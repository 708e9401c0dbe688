package arch

// Supported reports whether trap injection and frame-pointer walking are
// implemented for this architecture.
const Supported = true

const (
	// FPAlignment is the alignment generated code maintains for frame and
	// stack pointers.
	FPAlignment = 16

	// NextOlderFPOffset is where a frame record stores the caller's frame
	// pointer, relative to the frame pointer.
	NextOlderFPOffset = 0

	// ReturnAddrOffset is where a frame record stores the saved link
	// register, relative to the frame pointer.
	ReturnAddrOffset = 8

	// EntryFrameOffset relates the entry trampoline's frame pointer to the
	// stack pointer recorded on entry: fp == entrySP - EntryFrameOffset.
	// On aarch64 the trampoline allocates a full 16-byte frame record.
	EntryFrameOffset = 16

	// EntrySPRemainder is what a recorded entry stack pointer leaves mod
	// FPAlignment. A branch-and-link does not move SP, so the entry SP
	// stays on the 16-byte boundary.
	EntrySPRemainder = 0
)

// FaultContext is the register snapshot a platform shim captures at a
// machine fault and passes to the trap layer. X0 and X1 are the first two
// integer-argument registers of the AAPCS64 ABI; Fp is x29.
type FaultContext struct {
	Pc uint64
	Sp uint64
	Fp uint64
	X0 uint64
	X1 uint64
}

func (c *FaultContext) PC() uint64 { return c.Pc }
func (c *FaultContext) SetPC(v uint64) { c.Pc = v }
func (c *FaultContext) SP() uint64 { return c.Sp }
func (c *FaultContext) SetSP(v uint64) { c.Sp = v }
func (c *FaultContext) FP() uint64 { return c.Fp }
func (c *FaultContext) SetFP(v uint64) { c.Fp = v }
func (c *FaultContext) Arg0() uint64 { return c.X0 }
func (c *FaultContext) SetArg0(v uint64) { c.X0 = v }
func (c *FaultContext) Arg1() uint64 { return c.X1 }
func (c *FaultContext) SetArg1(v uint64) { c.X1 = v }
