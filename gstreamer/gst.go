package gstreamer

import (
	"log/slog"
	"sync"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
)

var initOnce sync.Once

func initGStreamer() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// runPipeline sets pipeline to playing and runs a main loop dispatching its
// bus messages until EOS or an error. The returned channel yields the
// pipeline error, if any, and is closed when the loop exits.
func runPipeline(pipeline *gst.Pipeline) (*glib.MainLoop, <-chan error, error) {
	mainloop := glib.NewMainLoop(glib.MainContextDefault(), false)
	errCh := make(chan error, 1)

	pipeline.GetPipelineBus().AddWatch(func(msg *gst.Message) bool {
		switch msg.Type() {
		case gst.MessageEOS:
			pipeline.BlockSetState(gst.StateNull)
			mainloop.Quit()
			return false
		case gst.MessageError:
			err := msg.ParseError()
			slog.Error("gstreamer pipeline error", "error", err.Error(), "debug", err.DebugString())
			select {
			case errCh <- err:
			default:
			}
			mainloop.Quit()
			return false
		}
		return true
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, nil, err
	}

	go func() {
		defer close(errCh)
		mainloop.Run()
	}()
	return mainloop, errCh, nil
}

func SetProperties(e *gst.Element, pp map[string]any) error {
	for k, v := range pp {
		if err := e.SetProperty(k, v); err != nil {
			return err
		}
	}
	return nil
}

func getFrameProbe(name string) func(p *gst.Pad, ppi *gst.PadProbeInfo) gst.PadProbeReturn {
	return func(p *gst.Pad, ppi *gst.PadProbeInfo) gst.PadProbeReturn {
		if (ppi.Type() & gst.PadProbeTypeBuffer) > 0 {
			if buffer := ppi.GetBuffer(); buffer != nil {
				slog.Debug("gstreamer frame", "probe", name, "pts", buffer.PresentationTimestamp(), "size", buffer.GetSize())
			}
		}
		return gst.PadProbeOK
	}
}
