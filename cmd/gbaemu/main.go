// Command gbaemu runs the core against a .gba ROM, either in a window or
// headlessly for scripted regression checks.
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/gbacore/internal/cart"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/emu"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/gbacore/internal/ui"
)

type cliFlags struct {
	ROMPath string
	BIOS    string
	Scale   int
	Title   string
	Trace   bool
	SaveRAM bool

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gba)")
	flag.StringVar(&f.BIOS, "bios", "", "optional GBA BIOS image; falls back to the skip_bios HLE path")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbacore", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "log CPU/cartridge diagnostics")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write the final framebuffer to a PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert the final framebuffer's CRC32 (hex)")
	flag.Parse()
	return f
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		m.RunFrame()
	}
	dur := time.Since(start)

	fb := m.Framebuffer()
	rgba := bgr555ToRGBA(fb)
	crc := crc32.ChecksumIEEE(rgba)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := savePNG(rgba, ppu.ScreenWidth, ppu.ScreenHeight, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func bgr555ToRGBA(fb *[ppu.ScreenWidth * ppu.ScreenHeight]uint16) []byte {
	out := make([]byte, ppu.ScreenWidth*ppu.ScreenHeight*4)
	for i, px := range fb {
		out[i*4+0] = uint8(px&0x1F) << 3
		out[i*4+1] = uint8((px>>5)&0x1F) << 3
		out[i*4+2] = uint8((px>>10)&0x1F) << 3
		out[i*4+3] = 0xFF
	}
	return out
}

func savePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func savPathFor(romPath string) string {
	return strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
}

func main() {
	f := parseFlags()
	rom := mustRead(f.ROMPath)
	bios := mustRead(f.BIOS)

	if len(rom) >= 0xC0 {
		if h, err := cart.ParseHeader(rom); err == nil {
			log.Printf("ROM: %q code=%s maker=%s", h.Title, h.GameCode, h.MakerCode)
		}
	}

	m := emu.New(emu.Config{Trace: f.Trace})
	if len(bios) > 0 {
		m.LoadBIOS(bios)
	}
	if len(rom) > 0 {
		if f.ROMPath != "" {
			if abs, err := filepath.Abs(f.ROMPath); err == nil {
				if err := m.LoadROMFromFile(abs); err != nil {
					log.Fatalf("load ROM: %v", err)
				}
			} else if err := m.LoadROMFromFile(f.ROMPath); err != nil {
				log.Fatalf("load ROM: %v", err)
			}
		} else if err := m.LoadROM(rom); err != nil {
			log.Fatalf("load ROM: %v", err)
		}
	}
	if len(bios) == 0 {
		m.SkipBIOS()
	}

	var savPath string
	if f.SaveRAM && f.ROMPath != "" {
		savPath = savPathFor(f.ROMPath)
		if data, err := os.ReadFile(savPath); err == nil {
			m.LoadBattery(data)
			log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
		}
	}

	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		if savPath != "" {
			if data := m.SaveBattery(); data != nil {
				if err := os.WriteFile(savPath, data, 0644); err == nil {
					log.Printf("wrote %s", savPath)
				}
			}
		}
		return
	}

	uiCfg := ui.Config{Title: f.Title, Scale: f.Scale}
	app := ui.NewApp(uiCfg, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	app.SaveSettings()

	if f.SaveRAM {
		outSav := savPath
		if outSav == "" && m.ROMPath() != "" {
			outSav = savPathFor(m.ROMPath())
		}
		if outSav != "" {
			if data := m.SaveBattery(); data != nil {
				if err := os.WriteFile(outSav, data, 0644); err == nil {
					log.Printf("wrote %s", outSav)
				}
			}
		}
	}
}
