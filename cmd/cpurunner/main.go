// Command cpurunner drives the ARM7TDMI core against a bare ROM image with
// no PPU/APU scheduling, for ARM/Thumb instruction-set conformance testing.
// It watches the mGBA-community debug string port (spec.md §5's HLE debug
// convention) the way the teacher's cpurunner watched the DMG link-cable
// serial port, since this core has no serial register in scope.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/gbacore/internal/bus"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cart"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cpu"
)

const entryPoint = 0x08000000

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gba)")
	biosPath := flag.String("bios", "", "optional BIOS image to boot through instead of -skipbios")
	steps := flag.Int("steps", 50_000_000, "max CPU steps to run")
	trace := flag.Bool("trace", false, "print PC/opcode/registers every step")
	until := flag.String("until", "Passed", "stop when a debug-port string contains this substring (case-insensitive); empty to disable")
	auto := flag.Bool("auto", false, "auto-detect 'Passed' or 'Failed N tests' in debug-port output and exit 0/1")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	traceOnFail := flag.Bool("traceOnFail", false, "when -auto detects failure, print a recent trace window (slows down)")
	traceWindow := flag.Int("traceWindow", 200, "number of recent instructions to include in 'traceOnFail' dump")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}

	b := bus.New(cart.NewCart(rom), 32768)

	var debugLog bytes.Buffer
	b.SetDebugWriter(func(level int, msg string) {
		fmt.Printf("[debug:%d] %s\n", level, msg)
		debugLog.WriteString(msg)
		debugLog.WriteByte('\n')
	})

	c := cpu.NewCPU(b)
	if *biosPath != "" {
		bios, err := os.ReadFile(*biosPath)
		if err != nil {
			log.Fatalf("read bios: %v", err)
		}
		b.LoadBIOS(bios)
		// Reset-vector boot: NewCPU already leaves PC=0 in SVC mode, which
		// is the documented ARM7TDMI power-on state; the BIOS itself jumps
		// to entryPoint once it finishes.
	} else {
		c.SkipBIOS(entryPoint)
	}

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)

	type traceEntry struct {
		pc, cpsr uint32
		r        [16]uint32
		cyc      int
	}
	ring := make([]traceEntry, *traceWindow)
	ringIdx, ringFill := 0, 0

	printEntry := func(te traceEntry) {
		fmt.Printf("PC=%08X CPSR=%08X cyc=%d R0=%08X R1=%08X R2=%08X R3=%08X SP=%08X LR=%08X\n",
			te.pc, te.cpsr, te.cyc, te.r[0], te.r[1], te.r[2], te.r[3], te.r[13], te.r[14])
	}

	var cycles int
	for i := 0; i < *steps; i++ {
		execPC := c.R(15) - 2*instrSize(c)
		cyc := c.Step()
		cycles += cyc

		if *trace || *traceOnFail {
			var te traceEntry
			te.pc, te.cyc, te.cpsr = execPC, cyc, c.CPSR()
			for n := 0; n < 16; n++ {
				te.r[n] = c.R(n)
			}
			if *trace {
				printEntry(te)
			}
			if *traceOnFail && *traceWindow > 0 {
				ring[ringIdx] = te
				ringIdx = (ringIdx + 1) % *traceWindow
				if ringFill < *traceWindow {
					ringFill++
				}
			}
		}

		s := debugLog.String()
		if *auto {
			if strings.Contains(strings.ToLower(s), "passed") {
				fmt.Printf("\nDetected PASS.\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				os.Exit(0)
			}
			if m := failRe.FindStringSubmatch(s); m != nil {
				fmt.Printf("\nDetected %s.\n", m[0])
				if *traceOnFail && ringFill > 0 {
					fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ringFill)
					startIdx := (ringIdx - ringFill + *traceWindow) % *traceWindow
					for j := 0; j < ringFill; j++ {
						printEntry(ring[(startIdx+j)%(*traceWindow)])
					}
					fmt.Printf("--- end trace ---\n")
				}
				fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				os.Exit(1)
			}
		} else if *until != "" && strings.Contains(strings.ToLower(s), strings.ToLower(*until)) {
			fmt.Printf("\nDetected %q in debug output.\nDone: steps=%d cycles~=%d elapsed=%s\n", *until, i+1, cycles, time.Since(start).Truncate(time.Millisecond))
			return
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\nDone: steps=%d cycles~=%d elapsed=%s\n", time.Since(start).Truncate(time.Millisecond), i+1, cycles, time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
	fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", *steps, cycles, time.Since(start).Truncate(time.Millisecond))
}

// instrSize mirrors cpu's private ARM/Thumb instruction-size rule so the
// trace can recover the executing instruction's address from R15's
// pipeline-ahead value without exporting an internal helper.
func instrSize(c *cpu.CPU) uint32 {
	if c.Thumb() {
		return 2
	}
	return 4
}
