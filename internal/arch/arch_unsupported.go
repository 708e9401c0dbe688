//go:build !amd64 && !arm64

package arch

// Supported reports whether trap injection and frame-pointer walking are
// implemented for this architecture.
const Supported = false

// Frame layout constants keep the walker compilable and testable with
// synthetic chains; real traversal never runs here.
const (
	FPAlignment       = 16
	NextOlderFPOffset = 0
	ReturnAddrOffset  = 8
	EntryFrameOffset  = 8
	EntrySPRemainder  = 8
)

// FaultContext is a placeholder on architectures without fault handling.
// Constructing one is a programmer error.
type FaultContext struct{}

func (c *FaultContext) PC() uint64 { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) SetPC(uint64) { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) SP() uint64 { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) SetSP(uint64) { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) FP() uint64 { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) SetFP(uint64) { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) Arg0() uint64 { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) SetArg0(uint64) { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) Arg1() uint64 { panic("BUG: fault context on unsupported architecture") }
func (c *FaultContext) SetArg1(uint64) { panic("BUG: fault context on unsupported architecture") }
