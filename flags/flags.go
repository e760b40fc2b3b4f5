// Package flags implements command-line flags for vpresent.
//
// The design idea is taken from [upspin.io/flags], but most of the code is
// modified. This package uses a slightly modified version of [RegisterInto] and
// the internal [flags]-map. See [Upspin LICENSE] for upspins copyright and
// license information.
//
// [upspin.io/flags]: https://github.com/upspin/upspin/tree/334f107fe3d98225d7adfbb35b74e066fbca9875/flags
// [Upspin LICENSE]: https://github.com/upspin/upspin/blob/334f107fe3d98225d7adfbb35b74e066fbca9875/LICENSE
package flags

import (
	"flag"
	"fmt"
)

type FlagName string

// flag keys
const (
	SourceFlag      FlagName = "source"
	FramesFlag      FlagName = "frames"
	FrameRateFlag   FlagName = "fps"
	WidthFlag       FlagName = "width"
	HeightFlag      FlagName = "height"
	PixelFormatFlag FlagName = "pixel-format"

	RateFlag        FlagName = "rate"
	RefreshRateFlag FlagName = "refresh-rate"
	BufferCountFlag FlagName = "buffers"
	HostThreadFlag  FlagName = "host-thread"

	SinkTypeFlag     FlagName = "sink-type"
	SinkLocationFlag FlagName = "sink-location"

	ControlAddrFlag FlagName = "control"
)

// Flag vars
var (
	// Source is either "pattern" or the path of an IVF file
	Source      = "pattern"
	Frames      = uint(0)
	FrameRate   = "30/1"
	Width       = uint(320)
	Height      = uint(240)
	PixelFormat = ""

	Rate        = 1.0
	RefreshRate = uint(60)
	BufferCount = uint(3)
	HostThread  = false

	SinkType     = uint(0) // Corresponds to autovideosink
	SinkLocation = "out.y4m"

	// ControlAddr is the HTTP control API address, empty disables it
	ControlAddr = ""
)

type flagVar func(*flag.FlagSet)

func stringVar(p *string, name FlagName, defaultValue *string, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.StringVar(p, string(name), *defaultValue, usage)
	}
}

func uintVar(p *uint, name FlagName, defaultValue *uint, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.UintVar(p, string(name), *defaultValue, usage)
	}
}

func boolVar(p *bool, name FlagName, defaultValue *bool, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.BoolVar(p, string(name), *defaultValue, usage)
	}
}

func float64Var(p *float64, name FlagName, defaultValue *float64, usage string) func(*flag.FlagSet) {
	return func(fs *flag.FlagSet) {
		fs.Float64Var(p, string(name), *defaultValue, usage)
	}
}

var flags = map[FlagName]flagVar{
	// Source flags
	SourceFlag:      stringVar(&Source, SourceFlag, &Source, "Video source: pattern or the path of an IVF (VP8/VP9) file"),
	FramesFlag:      uintVar(&Frames, FramesFlag, &Frames, "Number of pattern frames, 0 plays forever"),
	FrameRateFlag:   stringVar(&FrameRate, FrameRateFlag, &FrameRate, "Pattern frame rate as num/den"),
	WidthFlag:       uintVar(&Width, WidthFlag, &Width, "Pattern width"),
	HeightFlag:      uintVar(&Height, HeightFlag, &Height, "Pattern height"),
	PixelFormatFlag: stringVar(&PixelFormat, PixelFormatFlag, &PixelFormat, "Pattern pixel format (I420, NV12, XRGB, ...), empty offers I420 and XRGB"),

	// Presentation flags
	RateFlag:        float64Var(&Rate, RateFlag, &Rate, "Playback rate, negative plays backwards"),
	RefreshRateFlag: uintVar(&RefreshRate, RefreshRateFlag, &RefreshRate, "Display refresh rate in Hz, limits the playback rate"),
	BufferCountFlag: uintVar(&BufferCount, BufferCountFlag, &BufferCount, "Number of pooled frame buffers"),
	HostThreadFlag:  boolVar(&HostThread, HostThreadFlag, &HostThread, "Present frames on a dedicated OS thread"),

	// IO Flags
	SinkTypeFlag:     uintVar(&SinkType, SinkTypeFlag, &SinkType, "Sink type (0: autovideosink, 1: filesink, requires <location> to be set, 2: fakesink, 3: native y4m file)"),
	SinkLocationFlag: stringVar(&SinkLocation, SinkLocationFlag, &SinkLocation, "Output file for sink types 1 and 3"),

	// Control API
	ControlAddrFlag: stringVar(&ControlAddr, ControlAddrFlag, &ControlAddr, "HTTP control API address, empty disables the API"),
}

func RegisterInto(fs *flag.FlagSet, names ...FlagName) {
	if len(names) == 0 {
		for _, f := range flags {
			f(fs)
		}
	} else {
		for _, n := range names {
			f, ok := flags[n]
			if !ok {
				panic(fmt.Sprintf("unknown flag: %q", n))
			}
			f(fs)
		}
	}
}
