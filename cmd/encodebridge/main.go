package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/cli"
	"github.com/linuxmatters/encodebridge/internal/codec"
	"github.com/linuxmatters/encodebridge/internal/config"
	"github.com/linuxmatters/encodebridge/internal/encoder"
	"github.com/linuxmatters/encodebridge/internal/ffcodec"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/metrics"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
	"github.com/linuxmatters/encodebridge/internal/renderer"
	"github.com/linuxmatters/encodebridge/internal/ui"
)

// version is set via ldflags at build time
var version = "dev"

type EncodeCmd struct {
	Output string `arg:"" name:"output" help:"Elementary stream to write"`

	Encoder         string  `help:"FFmpeg encoder name, or auto/nvenc/qsv/amf/vaapi/videotoolbox to probe" default:"auto" env:"ENCODEBRIDGE_ENCODER"`
	Frames          int     `help:"Number of pictures to encode" default:"300"`
	SourceWidth     int     `help:"Source picture width" default:"1280"`
	SourceHeight    int     `help:"Source picture height" default:"720"`
	Width           int     `help:"Encoded width, 0 keeps the source width"`
	Height          int     `help:"Encoded height, 0 keeps the source height"`
	FPS             int     `help:"Frame rate numerator" default:"30"`
	FPSDen          int     `name:"fps-den" help:"Frame rate denominator" default:"1"`
	Format          string  `help:"Force the encoder input format, e.g. nv12 or yuv444p" default:"auto"`
	Range           string  `help:"Output colour range: limited or full" default:"limited"`
	Space           string  `help:"Output colour space: 601, 709 or srgb" default:"709"`
	KeyframeMode    string  `help:"Keyframe interval unit: seconds or frames" default:"seconds"`
	KeyframeSeconds float64 `help:"Keyframe interval in seconds" default:"2"`
	KeyframeFrames  int     `help:"Keyframe interval in frames" default:"60"`
	Threads         int     `help:"Codec threads, 0 for one per CPU"`
	GPU             int     `name:"gpu" help:"GPU index for hardware encoders, -1 for the default" default:"-1"`
	Options         string  `help:"Custom encoder options, e.g. '-preset=fast -crf=20'" env:"ENCODEBRIDGE_OPTIONS"`
	Background      string  `help:"PNG drawn behind the pattern" type:"existingfile"`
	Color           string  `help:"Solid background colour as RRGGBB instead of bars"`
	Label           string  `help:"Caption drawn on every picture"`
	Poster          string  `help:"Write the first picture as PNG"`
	Header          string  `help:"Write the stream header here, defaults to <output>.hdr"`
	NoPreview       bool    `help:"Disable the terminal preview"`
	NoUI            bool    `name:"no-ui" help:"Log instead of showing progress"`
}

type EncodersCmd struct{}

// versionFlag prints the version while parsing, so it works without the
// encode command's arguments
type versionFlag bool

func (versionFlag) BeforeApply(app *kong.Kong) error {
	cli.PrintVersion(version)
	app.Exit(0)
	return nil
}

var CLI struct {
	LogLevel    string      `help:"Log level: debug, info, warn, error" default:"info" env:"ENCODEBRIDGE_LOG_LEVEL"`
	MetricsAddr string      `help:"Serve Prometheus metrics on this address, e.g. :9090" env:"ENCODEBRIDGE_METRICS_ADDR"`
	Version     versionFlag `help:"Show version information"`

	Encode   EncodeCmd   `cmd:"" default:"withargs" help:"Encode a generated test pattern"`
	Encoders EncodersCmd `cmd:"" help:"List hardware and software encoders"`
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("encodebridge"),
		kong.Description(cli.Description),
		kong.Vars{"version": version},
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if err := ctx.Run(); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

func (c *EncodersCmd) Run() error {
	logging.Setup(CLI.LogLevel, os.Stderr)
	cli.PrintBanner()
	fmt.Print(ffcodec.Status(ffcodec.Probe()))
	return nil
}

func (c *EncodeCmd) config() (config.Config, error) {
	cfg := config.Default()
	cfg.Source = pixfmt.VideoInfo{
		Width:  c.SourceWidth,
		Height: c.SourceHeight,
		Format: pixfmt.RGBA,
		Range:  pixfmt.RangeFull,
		Space:  pixfmt.SpaceSRGB,
	}
	cfg.Width = c.Width
	cfg.Height = c.Height
	cfg.FPSNum = c.FPS
	cfg.FPSDen = c.FPSDen
	cfg.Threads = c.Threads
	cfg.GPU = c.GPU
	cfg.CustomOptions = c.Options
	cfg.KeyframeSeconds = c.KeyframeSeconds
	cfg.KeyframeFrames = c.KeyframeFrames

	var err error
	if cfg.Format, err = pixfmt.ParseFormat(c.Format); err != nil {
		return cfg, err
	}
	if cfg.Range, err = pixfmt.ParseRange(c.Range); err != nil {
		return cfg, err
	}
	if cfg.Space, err = pixfmt.ParseSpace(c.Space); err != nil {
		return cfg, err
	}
	if cfg.KeyframeMode, err = config.ParseKeyframeMode(c.KeyframeMode); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// resolveEncoder turns an acceleration family into a probed encoder name,
// falling back to libx264
func resolveEncoder(name string) string {
	switch accel := ffcodec.Accel(name); accel {
	case ffcodec.AccelAuto, ffcodec.AccelNVENC, ffcodec.AccelQSV, ffcodec.AccelAMF,
		ffcodec.AccelVAAPI, ffcodec.AccelVideoToolbox:
		if best := ffcodec.Select(accel, ffcodec.Probe()); best != nil {
			return best.Name
		}
		return "libx264"
	case ffcodec.AccelNone:
		return "libx264"
	}
	return name
}

func (c *EncodeCmd) background(w, h int) (*image.RGBA, error) {
	if c.Background != "" {
		return renderer.LoadBackground(c.Background, w, h)
	}
	if c.Color == "" {
		return nil, nil
	}
	r, g, b, err := config.ParseHexColor(c.Color)
	if err != nil {
		return nil, err
	}
	bg := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: r, G: g, B: b, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg.SetRGBA(x, y, fill)
		}
	}
	return bg, nil
}

// streamWriter is the session's packet sink
type streamWriter struct {
	w       *bufio.Writer
	bytes   int64
	packets int
}

func (s *streamWriter) WritePacket(p codec.Packet) error {
	n, err := s.w.Write(p.Data)
	s.bytes += int64(n)
	s.packets++
	return err
}

func (c *EncodeCmd) Run() error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	if !c.NoUI {
		logOut = io.Discard
	}
	logging.Setup(CLI.LogLevel, logOut)
	log := logging.Child("main")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := metrics.New()
	if CLI.MetricsAddr != "" {
		go func() {
			if err := m.Serve(sigCtx, CLI.MetricsAddr); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	name := resolveEncoder(c.Encoder)
	enc, err := ffcodec.Open(name)
	if err != nil {
		return fmt.Errorf("opening encoder: %w", err)
	}

	out, err := os.Create(c.Output)
	if err != nil {
		enc.Close()
		return fmt.Errorf("creating output: %w", err)
	}
	defer out.Close()
	sink := &streamWriter{w: bufio.NewWriterSize(out, 1<<20)}

	session, err := encoder.New(cfg, enc,
		encoder.WithConverters(ffcodec.Swscale),
		encoder.WithSink(sink),
		encoder.WithMetrics(m),
		encoder.WithLogger(logging.Child("encoder")),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	bg, err := c.background(cfg.Source.Width, cfg.Source.Height)
	if err != nil {
		session.Close()
		return fmt.Errorf("loading background: %w", err)
	}
	face, err := renderer.LoadFace(float64(cfg.Source.Height) / 12)
	if err != nil {
		log.Warnf("drawing without text: %v", err)
		face = nil
	}
	pattern := renderer.NewPattern(cfg.Source.Width, cfg.Source.Height, cfg.FPSNum, cfg.FPSDen, bg, face)
	defer pattern.Close()
	pattern.SetLabel(c.Label)

	var program *tea.Program
	var model *ui.Model
	if !c.NoUI {
		model = ui.NewModel(c.NoPreview)
		program = tea.NewProgram(model)
	}
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	fps := float64(cfg.FPSNum) / float64(cfg.FPSDen)
	targetName := cfg.Output().String()
	if nf := session.Format(); nf != nil {
		targetName = nf.Target.String()
	}
	modeName := fmt.Sprintf("%d threads, lag %d", cfg.ResolveThreads(), session.Lag())

	var runErr error
	var summary ui.Complete
	run := func(runCtx context.Context) {
		start := time.Now()
		var renderTime, encodeTime time.Duration

		for n := int64(0); n < int64(c.Frames); n++ {
			if runCtx.Err() != nil {
				runErr = runCtx.Err()
				break
			}

			t0 := time.Now()
			f := pattern.Frame(n, cfg.Source.Range, cfg.Source.Space)
			if n == 0 && c.Poster != "" {
				if err := renderer.WritePNG(c.Poster, pattern.Render(0)); err != nil {
					log.Warnf("failed to write poster: %v", err)
				}
			}
			renderTime += time.Since(t0)

			t0 = time.Now()
			res, err := session.Encode(f)
			encodeTime += time.Since(t0)
			if err != nil {
				runErr = fmt.Errorf("encoding frame %d: %w", n, err)
				break
			}
			if !res.Accepted {
				log.Debugf("frame %d dropped", n)
			}

			if n%3 == 0 || n == int64(c.Frames)-1 {
				p := ui.Progress{
					Frame:       int(n) + 1,
					TotalFrames: c.Frames,
					Packets:     sink.packets,
					Bytes:       sink.bytes,
					Dropped:     int(m.Total(metrics.FramesDropped)),
					InFlight:    session.PoolStats().InFlight,
					Elapsed:     time.Since(start),
					Encoder:     name,
					Format:      targetName,
					Mode:        modeName,
					FrameRate:   fps,
				}
				if n%6 == 0 {
					// the UI reads the preview while later pictures render
					src := pattern.Render(n)
					p.Preview = &image.RGBA{
						Pix:    append([]byte(nil), src.Pix...),
						Stride: src.Stride,
						Rect:   src.Rect,
					}
				}
				send(p)
			}
		}

		t0 := time.Now()
		if err := session.Close(); err != nil && runErr == nil {
			runErr = err
		}
		if err := sink.w.Flush(); err != nil && runErr == nil {
			runErr = err
		}
		closeTime := time.Since(t0)

		headerPath := ""
		if h := session.Header(); !h.Empty() && (runErr == nil || errors.Is(runErr, context.Canceled)) {
			headerPath = c.Header
			if headerPath == "" {
				headerPath = c.Output + ".hdr"
			}
			if err := os.WriteFile(headerPath, annexB(h), 0o644); err != nil && runErr == nil {
				runErr = fmt.Errorf("writing header: %w", err)
			}
		}

		stats := session.PoolStats()
		summary = ui.Complete{
			OutputFile: c.Output,
			HeaderFile: headerPath,
			Encoder:    name,
			Frames:     session.Submitted(),
			Packets:    sink.packets,
			Bytes:      sink.bytes,
			Dropped:    int(m.Total(metrics.FramesDropped)),
			Deadlocks:  int(m.Total(metrics.Deadlocks)),
			Allocated:  stats.Allocated,
			Reused:     stats.Reused,
			FrameRate:  fps,
			RenderTime: renderTime,
			EncodeTime: encodeTime,
			CloseTime:  closeTime,
			TotalTime:  time.Since(start),
		}
		if runErr != nil {
			send(ui.Failed{Err: runErr})
			return
		}
		send(summary)
	}

	if program == nil {
		run(sigCtx)
	} else if err := ui.Drive(sigCtx, program, run); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			cli.PrintWarning(fmt.Sprintf("interrupted after %d frames, %s kept", summary.Frames, c.Output))
		}
		return runErr
	}
	if model != nil {
		fmt.Println(model.Summary())
	} else {
		printSummary(summary)
	}
	cli.PrintBox(os.Stdout, cli.MetricsSummary(m))
	return nil
}

// annexB lays the header out as a start-code prefixed stream, Config first
func annexB(h bitstream.Header) []byte {
	var out []byte
	for _, part := range [][]byte{h.Config, h.SEI} {
		if len(part) == 0 {
			continue
		}
		out = append(out, bitstream.StartCode4...)
		out = append(out, part...)
	}
	return out
}

func printSummary(c ui.Complete) {
	cli.PrintSection("Encode")
	cli.PrintInfo("Encoder", c.Encoder)
	cli.PrintInfo("Frames", fmt.Sprintf("%d (%d dropped)", c.Frames, c.Dropped))
	cli.PrintInfo("Output", fmt.Sprintf("%s, %d packets, %s", c.OutputFile, c.Packets, cli.FormatBytes(c.Bytes)))
	if c.HeaderFile != "" {
		cli.PrintInfo("Header", c.HeaderFile)
	}
	cli.PrintInfo("Render", cli.FormatDuration(c.RenderTime))
	cli.PrintInfo("Encode", cli.FormatDuration(c.EncodeTime))
	cli.PrintInfo("Flush", cli.FormatDuration(c.CloseTime))
	cli.PrintSuccess(fmt.Sprintf("done in %s", cli.FormatDuration(c.TotalTime)))
}
