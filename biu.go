// biu.go - Bus Interface Unit: request/response memory & I/O gate, prefetch
// queue, bus-lock arbitration (§4.1).
//
// Grounded on the teacher's X86Bus.Tick(cycles) call at the end of Step()
// (cpu_x86.go) for "cycles drive a device clock fabric", generalized from a
// single flat bus object into a request/response pipeline per §4.1.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

// biuOpKind distinguishes the six request shapes §4.1 names: {byte, word,
// dword} x {read, write}, for both memory and I/O.
type biuOpKind int

const (
	biuReadByte biuOpKind = iota
	biuReadWord
	biuReadDword
	biuWriteByte
	biuWriteWord
	biuWriteDword
)

type biuTarget int

const (
	biuTargetMemory biuTarget = iota
	biuTargetIO
)

// biuRequest is one pending transaction in the FIFO.
type biuRequest struct {
	kind    biuOpKind
	target  biuTarget
	addr    uint32
	value   uint32
	pending bool
	result  uint32
	fault   bool
}

const biuQueueDepth = 16 // requests in flight; generous upper bound

// BIU mediates all memory/IO traffic for one CPU (§4.1). At most one
// transaction is outstanding per the data-model invariant; the queue here
// models request backlog, not simultaneous execution.
type BIU struct {
	m   *Machine
	cpu *CPU

	fifo []biuRequest

	prefetch      []byte
	prefetchDepth int
	prefetchBase  uint32 // linear CS:EIP the queue starts at

	busLocked     bool
	busLockOwner  int
	lockRequested [2]bool // indexed by CPU index
}

// NewBIU creates a BIU for the given CPU model with the model-appropriate
// prefetch queue depth; bind attaches it to its CPU afterwards (4 bytes on 8088 through 16 bytes on 486+).
func NewBIU(m *Machine, model CPUModel) *BIU {
	depth := 4
	switch {
	case model >= Model486:
		depth = 16
	case model >= Model386:
		depth = 12
	case model >= Model286:
		depth = 6
	}
	return &BIU{m: m, prefetchDepth: depth}
}

func (b *BIU) bind(cpu *CPU) { b.cpu = cpu }

// requestReady reports whether a new request may be issued: the FIFO isn't
// full and the bus isn't locked by a different master.
func (b *BIU) requestReady() bool {
	if len(b.fifo) >= biuQueueDepth {
		return false
	}
	if b.busLocked && b.busLockOwner != b.cpu.Index {
		return false
	}
	return true
}

// issue enqueues a request. Returns false ("not ready", §4.1) if the
// pipeline is full or the bus is held by another master; the caller must
// retry next cycle.
func (b *BIU) issue(req biuRequest) bool {
	if !b.requestReady() {
		return false
	}
	b.fifo = append(b.fifo, req)
	return true
}

// flushPrefetch discards queued prefetch bytes - called on any branch,
// since the queue is transparent to correctness and only affects timing.
func (b *BIU) flushPrefetch() {
	b.prefetch = b.prefetch[:0]
}

// requestLock is called by the LOCK prefix path. The grant happens in
// tick.go's outer-loop step (serviceBusLock), which picks the lowest CPU
// index among contenders (§4.1).
func (b *BIU) requestLock() {
	b.lockRequested[b.cpu.Index] = true
}

func (b *BIU) releaseLock() {
	b.lockRequested[b.cpu.Index] = false
	if b.busLockOwner == b.cpu.Index {
		b.busLocked = false
	}
}

// serviceFIFO drains pending requests against physical memory/IO. Since
// this core has no separate bus-cycle timing beyond cycle accounting, every
// queued request completes in the same outer-loop tick it was accepted in;
// the FIFO still provides the ordering guarantee (§4.1: "FIFO ordering of
// requests from a single CPU") for callers that issue several in a row
// before reading results back.
func (b *BIU) serviceFIFO() {
	for i := range b.fifo {
		req := &b.fifo[i]
		if req.pending {
			continue
		}
		switch req.target {
		case biuTargetMemory:
			b.serviceMemory(req)
		case biuTargetIO:
			b.serviceIO(req)
		}
	}
	b.fifo = b.fifo[:0]
}

func (b *BIU) serviceMemory(req *biuRequest) {
	switch req.kind {
	case biuReadByte:
		v, f := b.m.PhysMem.Read8(req.addr)
		req.result, req.fault = uint32(v), f
	case biuReadWord:
		v, f := b.m.PhysMem.Read16(req.addr)
		req.result, req.fault = uint32(v), f
	case biuReadDword:
		v, f := b.m.PhysMem.Read32(req.addr)
		req.result, req.fault = v, f
	case biuWriteByte:
		req.fault = b.m.PhysMem.Write8(req.addr, byte(req.value))
	case biuWriteWord:
		req.fault = b.m.PhysMem.Write16(req.addr, uint16(req.value))
	case biuWriteDword:
		req.fault = b.m.PhysMem.Write32(req.addr, req.value)
	}
}

func (b *BIU) serviceIO(req *biuRequest) {
	switch req.kind {
	case biuReadByte:
		req.result = uint32(b.m.IOPorts.In(uint16(req.addr)))
	case biuWriteByte:
		b.m.IOPorts.Out(uint16(req.addr), byte(req.value))
	}
}

// BIU_request_rb/wb etc. are the CPU-facing request functions named in
// §4.1. They return (value, ok); ok=false means "pipeline full, retry".
// In this single-stepping core they are serviced synchronously within the
// same call, so ok is only ever false when the bus is locked by the other
// CPU - the realistic case the spec's yield semantics exist for.
func (b *BIU) BIU_request_rb(addr uint32) (byte, bool) {
	req := biuRequest{kind: biuReadByte, target: biuTargetMemory, addr: addr}
	if !b.issue(req) {
		return 0, false
	}
	b.serviceFIFO()
	v, _ := b.m.PhysMem.Read8(addr)
	return v, true
}

func (b *BIU) BIU_request_wb(addr uint32, v byte) bool {
	req := biuRequest{kind: biuWriteByte, target: biuTargetMemory, addr: addr, value: uint32(v)}
	if !b.issue(req) {
		return false
	}
	b.serviceFIFO()
	return true
}

func (b *BIU) BIU_request_io_rb(port uint16) (byte, bool) {
	req := biuRequest{kind: biuReadByte, target: biuTargetIO, addr: uint32(port)}
	if !b.issue(req) {
		return 0, false
	}
	b.serviceFIFO()
	return b.m.IOPorts.In(port), true
}

func (b *BIU) BIU_request_io_wb(port uint16, v byte) bool {
	req := biuRequest{kind: biuWriteByte, target: biuTargetIO, addr: uint32(port), value: uint32(v)}
	if !b.issue(req) {
		return false
	}
	b.serviceFIFO()
	return true
}
