package arch

// Supported reports whether trap injection and frame-pointer walking are
// implemented for this architecture.
const Supported = true

const (
	// FPAlignment is the alignment generated code maintains for frame and
	// stack pointers.
	FPAlignment = 16

	// NextOlderFPOffset is where a frame stores its caller's frame pointer,
	// relative to the frame pointer.
	NextOlderFPOffset = 0

	// ReturnAddrOffset is where a frame stores its return address, relative
	// to the frame pointer.
	ReturnAddrOffset = 8

	// EntryFrameOffset relates the entry trampoline's frame pointer to the
	// stack pointer recorded on entry: fp == entrySP - EntryFrameOffset.
	// On x86-64 the call into the trampoline pushes only the return address.
	EntryFrameOffset = 8

	// EntrySPRemainder is what a recorded entry stack pointer leaves mod
	// FPAlignment. The entry SP is captured after the call pushed its
	// return address, so it sits 8 off the 16-byte call boundary.
	EntrySPRemainder = 8
)

// FaultContext is the register snapshot a platform shim captures at a
// machine fault and passes to the trap layer. Rdi and Rsi are the first two
// integer-argument registers of the System V ABI.
type FaultContext struct {
	Rip uint64
	Rsp uint64
	Rbp uint64
	Rdi uint64
	Rsi uint64
}

func (c *FaultContext) PC() uint64 { return c.Rip }
func (c *FaultContext) SetPC(v uint64) { c.Rip = v }
func (c *FaultContext) SP() uint64 { return c.Rsp }
func (c *FaultContext) SetSP(v uint64) { c.Rsp = v }
func (c *FaultContext) FP() uint64 { return c.Rbp }
func (c *FaultContext) SetFP(v uint64) { c.Rbp = v }
func (c *FaultContext) Arg0() uint64 { return c.Rdi }
func (c *FaultContext) SetArg0(v uint64) { c.Rdi = v }
func (c *FaultContext) Arg1() uint64 { return c.Rsi }
func (c *FaultContext) SetArg1(v uint64) { c.Rsi = v }
