package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace      bool // log CPU instructions
	LimitFPS   bool // throttle to ~60 Hz (useful for headless test mode)
	SampleRate int  // APU output sample rate; 0 defaults to 32768
	// Later: fast-forward, debugger flags, etc.
}
