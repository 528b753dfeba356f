// Package emu wires the CPU, bus, and every peripheral into a runnable
// machine and drives the frame scheduler described by spec.md §4.3's frame
// protocol: 228 scanlines of 1232 cycles each, split into HDraw/HBlank.
package emu

import (
	"bytes"
	"encoding/gob"
	"log"
	"os"

	"github.com/FabianRolfMatthiasNoll/gbacore/internal/bus"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cart"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/ppu"
)

const (
	ScanlinesPerFrame = 228
	VisibleScanlines  = 160
	CyclesHDraw       = 960
	CyclesHBlank      = 272
	CyclesPerScanline = CyclesHDraw + CyclesHBlank

	defaultSampleRate = 32768

	entryPoint = 0x08000000
)

// Buttons mirrors the GBA's 10-key keypad, spec.md §6's bit map: A=0, B=1,
// Select=2, Start=3, Right=4, Left=5, Up=6, Down=7, R=8, L=9.
type Buttons struct {
	A, B, Select, Start   bool
	Right, Left, Up, Down bool
	R, L                  bool
}

// Machine owns one complete GBA system: CPU, bus, and every peripheral the
// bus wires in turn. One Machine is one system instance, per spec.md §3's
// "Ownership is exclusive" invariant.
type Machine struct {
	cfg Config
	bus *bus.Bus
	cpu *cpu.CPU

	frameComplete bool

	romPath  string
	romTitle string
}

// New constructs a Machine with an empty cartridge slot; call LoadROM before
// RunFrame produces anything meaningful.
func New(cfg Config) *Machine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	b := bus.New(cart.NewCart(nil), cfg.SampleRate)
	m := &Machine{cfg: cfg, bus: b}
	m.cpu = cpu.NewCPU(b)
	b.SetHaltCallback(func(stop bool) { m.cpu.SetHalted(true) })
	return m
}

// LoadBIOS fills the BIOS region with a real dumped image. Without a call to
// either LoadBIOS or SkipBIOS the CPU starts executing zeroed BIOS memory.
func (m *Machine) LoadBIOS(data []byte) { m.bus.LoadBIOS(data) }

// LoadROM parses the cartridge header for diagnostics and installs the ROM,
// sizing battery-backed SRAM from the detected save size (spec.md §6's
// load_rom). Parse failures are logged and fall back to the default SRAM
// size rather than rejecting the ROM, per spec.md §7's recoverable-error
// handling.
func (m *Machine) LoadROM(data []byte) error {
	c := cart.NewCart(data)
	if h, err := cart.ParseHeader(data); err != nil {
		log.Printf("emu: could not parse ROM header: %v", err)
		m.romTitle = ""
	} else {
		if m.cfg.Trace {
			log.Printf("emu: loaded %q (code %s, maker %s)", h.Title, h.GameCode, h.MakerCode)
		}
		m.romTitle = h.Title
	}
	m.bus.SetCart(c)
	return nil
}

// LoadROMFromFile reads path and installs it as the current cartridge,
// remembering path for ROMPath/save-state/battery file naming.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadROM(data); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile last loaded, or "" if the
// cartridge was installed directly via LoadROM.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header's game title, parsed by LoadROM.
func (m *Machine) ROMTitle() string { return m.romTitle }

// Reset performs a soft reset: re-enter the post-BIOS state at the
// cartridge entry point without touching loaded ROM, BIOS, or battery RAM.
func (m *Machine) Reset() { m.SkipBIOS() }

// LoadBattery restores a cartridge's save RAM from host storage.
func (m *Machine) LoadBattery(data []byte) {
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
	}
}

// SaveBattery returns the cartridge's current save RAM for the host to
// persist.
func (m *Machine) SaveBattery() []byte {
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// SkipBIOS installs the post-BIOS CPU/stack state and, since this core only
// ever HLEs BIOS SWI handlers, writes the fixed IRQ trampoline into the
// BIOS region so a taken interrupt has a real handler to return through
// (spec.md §6's exact trampoline bytes).
func (m *Machine) SkipBIOS() {
	m.cpu.SkipBIOS(entryPoint)
	m.bus.PatchBIOS(0x18, biosIRQVector)
	m.bus.PatchBIOS(0x128, biosIRQHandler)
}

// biosIRQVector is "B 0x128" at offset 0x18, the IRQ exception vector.
var biosIRQVector = encodeWords(0xEA000042)

// biosIRQHandler is the documented trampoline body at 0x128: save the
// caller's scratch registers, chain into the user IRQ handler pointed to by
// the 0x03FFFFFC vector, then restore and return with the documented
// SUBS PC,LR,#4 exception-return idiom.
//
//	STMFD SP!,{R0-R3,R12,LR}
//	MOV   R0,#0x04000000
//	ADD   LR,PC,#0
//	LDR   PC,[R0,#-4]
//	LDMFD SP!,{R0-R3,R12,LR}
//	SUBS  PC,LR,#4
var biosIRQHandler = encodeWords(
	0xE92D500F,
	0xE3A00301,
	0xE28FE000,
	0xE510F004,
	0xE8BD500F,
	0xE25EF004,
)

func encodeWords(words ...uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[i*4+0] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}
	return out
}

// SetButtons pushes the host's current key state into KEYINPUT.
func (m *Machine) SetButtons(b Buttons) {
	m.bus.SetKey(0, b.A)
	m.bus.SetKey(1, b.B)
	m.bus.SetKey(2, b.Select)
	m.bus.SetKey(3, b.Start)
	m.bus.SetKey(4, b.Right)
	m.bus.SetKey(5, b.Left)
	m.bus.SetKey(6, b.Up)
	m.bus.SetKey(7, b.Down)
	m.bus.SetKey(8, b.R)
	m.bus.SetKey(9, b.L)
}

// Framebuffer returns the completed 240x160 15-bit BGR pixel array.
func (m *Machine) Framebuffer() *[ppu.ScreenWidth * ppu.ScreenHeight]uint16 {
	return m.bus.PPU().Framebuffer()
}

// PullAudio drains up to len(left) stereo sample pairs produced since the
// last call, returning the count actually written.
func (m *Machine) PullAudio(left, right []int16) int {
	return m.bus.APU().PullStereo(left, right)
}

// RunFrame advances exactly one 228-scanline frame, implementing spec.md
// §4.3's ten-step frame protocol per scanline.
func (m *Machine) RunFrame() {
	m.frameComplete = false
	for {
		m.stepScanline()
		if m.frameComplete {
			return
		}
	}
}

func (m *Machine) stepScanline() {
	ppuUnit := m.bus.PPU()
	visible := ppuUnit.VCount() < VisibleScanlines

	m.runCycles(CyclesHDraw)

	ppuUnit.SetHBlank(true)
	if visible {
		ppuUnit.RenderScanline()
		m.bus.DMA().TriggerHBlank()
		ppuUnit.StepAffineReferencePoints()
	}

	m.runCycles(CyclesHBlank)

	ppuUnit.SetHBlank(false)
	next := uint8((int(ppuUnit.VCount()) + 1) % ScanlinesPerFrame)
	ppuUnit.SetVCount(next)

	if next == VisibleScanlines {
		ppuUnit.SetVBlank(true)
		m.bus.DMA().TriggerVBlank()
		ppuUnit.ReloadAffineReferencePoints()
		m.frameComplete = true
	}
	if next == 0 {
		ppuUnit.SetVBlank(false)
	}
}

// runCycles advances the CPU until it has consumed at least budget cycles,
// matching the teacher's cycle-budget CPU/timer stepping loop.
func (m *Machine) runCycles(budget int) {
	spent := 0
	for spent < budget {
		spent += m.cpu.Step()
	}
}

// machineState is the gob-serializable top-level save-state snapshot.
type machineState struct {
	CPU, Bus []byte
}

// SaveState returns a snapshot of the whole machine (spec.md §3's full
// "Lifecycles" coverage), suitable for SaveState/LoadState round-tripping.
func (m *Machine) SaveState() []byte {
	var buf bytes.Buffer
	s := machineState{CPU: m.cpu.SaveState(), Bus: m.bus.SaveState()}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState.
func (m *Machine) LoadState(data []byte) {
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		log.Printf("emu: discarding corrupt save state: %v", err)
		return
	}
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
}

// SaveStateToFile writes SaveState's snapshot to path.
func (m *Machine) SaveStateToFile(path string) error {
	return os.WriteFile(path, m.SaveState(), 0644)
}

// LoadStateFromFile restores a snapshot previously written by
// SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.LoadState(data)
	return nil
}
