package subcmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/mengelbart/vpresent"
	"github.com/mengelbart/vpresent/cmdmain"
	"github.com/mengelbart/vpresent/engine"
	"github.com/mengelbart/vpresent/flags"
	"github.com/mengelbart/vpresent/gstreamer"
	"github.com/mengelbart/vpresent/host"
	"github.com/mengelbart/vpresent/internal/control"
	"github.com/mengelbart/vpresent/media"
	"github.com/mengelbart/vpresent/presenter"
	"github.com/mengelbart/vpresent/source"
	"github.com/mengelbart/vpresent/source/ivf"
	"golang.org/x/sync/errgroup"
)

const nativeY4MSink = 3

func init() {
	cmdmain.RegisterSubCmd("play", func() cmdmain.SubCmd { return new(Play) })
}

type Play struct{}

func (p *Play) Help() string {
	return "Play a test pattern or an IVF file"
}

func (p *Play) Exec(cmd string, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	flags.RegisterInto(fs, []flags.FlagName{
		flags.SourceFlag,
		flags.FramesFlag,
		flags.FrameRateFlag,
		flags.WidthFlag,
		flags.HeightFlag,
		flags.PixelFormatFlag,
		flags.RateFlag,
		flags.RefreshRateFlag,
		flags.BufferCountFlag,
		flags.HostThreadFlag,
		flags.SinkTypeFlag,
		flags.SinkLocationFlag,
		flags.ControlAddrFlag,
	}...)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Play a test pattern or an IVF file

Usage:
	%v play [flags]

Flags:
`, cmd)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}
	fs.Parse(args)

	if len(fs.Args()) > 0 {
		fmt.Fprintf(os.Stderr, "error: unknown extra arguments: %v\n", fs.Args())
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sink, err := newSink()
	if err != nil {
		return err
	}
	if c, ok := sink.(io.Closer); ok {
		defer c.Close()
	}
	e, err := engine.New(sink, engine.WithRefreshRate(int(flags.RefreshRate)))
	if err != nil {
		return err
	}
	mixer, err := newMixer()
	if err != nil {
		return err
	}

	presenterOptions := []presenter.Option{
		presenter.WithBufferCount(int(flags.BufferCount)),
	}
	if flags.HostThread {
		loop := host.NewLoop()
		defer loop.Close()
		presenterOptions = append(presenterOptions, presenter.WithHost(loop))
	}
	player, err := vpresent.NewPlayer(e, mixer,
		vpresent.WithPresenterOptions(presenterOptions...),
		vpresent.WithEventHandler(logEvent),
	)
	if err != nil {
		return err
	}
	defer player.Close()

	if flags.Rate != 1 {
		if err = player.SetRate(flags.Rate); err != nil {
			return err
		}
	}
	if err = player.Play(); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer stop()
		return player.Run(ctx)
	})
	if flags.ControlAddr != "" {
		server, err := control.NewServer(player,
			control.Address(flags.ControlAddr),
			control.RequestLogger(slog.Default()),
		)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return server.ListenAndServe(ctx)
		})
	}
	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newSink() (engine.FrameSink, error) {
	if flags.SinkType == nativeY4MSink {
		return engine.NewY4MFileSink(flags.SinkLocation)
	}
	if flags.SinkType > uint(gstreamer.Fakesink) {
		return nil, fmt.Errorf("invalid %v: %v", flags.SinkTypeFlag, flags.SinkType)
	}
	return gstreamer.NewSink(
		gstreamer.SinkTypeOption(gstreamer.SinkType(flags.SinkType)),
		gstreamer.SinkLocation(flags.SinkLocation),
	)
}

func newMixer() (vpresent.Mixer, error) {
	if flags.Source != "pattern" {
		file, err := os.Open(flags.Source)
		if err != nil {
			return nil, err
		}
		m, err := ivf.NewMixer(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return m, nil
	}

	fps, err := parseRatio(flags.FrameRate)
	if err != nil {
		return nil, err
	}
	opts := []source.PatternOption{
		source.PatternSize(int(flags.Width), int(flags.Height)),
		source.PatternFrameRate(fps),
		source.PatternFrameCount(int(flags.Frames)),
	}
	if flags.PixelFormat != "" {
		pf, err := media.FormatFromString(flags.PixelFormat)
		if err != nil {
			return nil, err
		}
		opts = append(opts, source.PatternFormats(pf))
	}
	return source.NewPattern(opts...)
}

// parseRatio parses "num/den" or a plain integer rate.
func parseRatio(s string) (media.Ratio, error) {
	numStr, denStr, found := strings.Cut(s, "/")
	if !found {
		denStr = "1"
	}
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return media.Ratio{}, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	den, err := strconv.Atoi(denStr)
	if err != nil {
		return media.Ratio{}, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	r := media.Ratio{Num: num, Den: den}
	if !r.Valid() {
		return media.Ratio{}, fmt.Errorf("invalid frame rate %q", s)
	}
	return r, nil
}

func logEvent(e presenter.Event) {
	switch e.Type {
	case presenter.EventProcessingLatency:
		slog.Debug("presenter event", "type", e.Type, "latency", e.Latency)
	case presenter.EventErrorAbort, presenter.EventPresentFailed:
		slog.Error("presenter event", "type", e.Type, "error", e.Err)
	case presenter.EventSampleDropped:
		slog.Warn("presenter event", "type", e.Type, "sample-time", e.Time)
	default:
		slog.Info("presenter event", "type", e.Type, "cancelled", e.Cancelled, "time", e.Time)
	}
}
