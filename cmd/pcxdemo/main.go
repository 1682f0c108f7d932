// Command pcxdemo boots a Machine, optionally loads a BIOS ROM image at
// F0000-FFFFF, and wires host stdin/stdout to COM1 through the
// UARTConsoleHost adapter so a guest that talks to the serial port can be
// driven interactively. No video/audio/disk surface is touched, per
// SPEC_FULL.md §A: the core takes its handful of knobs as flags, the same
// way the pack's outer cmd/ tools (ie32to64, yasm) do, never through a
// framework reached for inside the core itself.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zaynotley/pcx86core"
)

func main() {
	var (
		model    = flag.String("model", "386", "CPU model: 8086,186,286,386,486,pentium,ppro,p2")
		memKB    = flag.Int("memkb", 1024, "memory size in KB")
		mhz      = flag.Float64("mhz", 4.77, "emulated CPU MHz")
		romPath  = flag.String("rom", "", "optional BIOS ROM image loaded at F0000-FFFFF")
		runSecs  = flag.Float64("run", 1.0, "simulated seconds to advance before exiting")
		arch     = flag.String("arch", "AT", "architecture tag: XT,AT,Compaq,PS2,i430fx,i440fx")
	)
	flag.Parse()

	cfg := pcx86.MachineConfig{
		Model:    parseModel(*model),
		MHz:      *mhz,
		MemoryKB: *memKB,
		Arch:     *arch,
		NumCPUs:  1,
	}

	m, err := pcx86.NewMachine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pcxdemo: %v\n", err)
		os.Exit(1)
	}

	if *romPath != "" {
		data, err := os.ReadFile(*romPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pcxdemo: reading ROM: %v\n", err)
			os.Exit(1)
		}
		start := uint32(0x100000 - len(data))
		m.PhysMem.MapROM(start, data)
	}

	host := NewUARTConsoleHost(m.UARTs[0])
	host.Start()
	defer host.Stop()

	const tickNS = int64(1_000_000) // 1ms per Advance call, well under the 16ms guard
	deadline := time.Duration(*runSecs * float64(time.Second))
	elapsed := time.Duration(0)
	for elapsed < deadline {
		m.Advance(tickNS)
		host.PumpOutput()
		elapsed += time.Duration(tickNS)
	}
}

func parseModel(s string) pcx86.CPUModel {
	switch s {
	case "8086":
		return pcx86.Model8086
	case "186":
		return pcx86.Model186
	case "286":
		return pcx86.Model286
	case "386":
		return pcx86.Model386
	case "486":
		return pcx86.Model486
	case "pentium":
		return pcx86.ModelPentium
	case "ppro":
		return pcx86.ModelPentiumPro
	case "p2":
		return pcx86.ModelPentiumII
	default:
		return pcx86.Model386
	}
}
