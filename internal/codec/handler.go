package codec

import (
	"strings"
	"sync"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Handler holds per-encoder behaviour the session cannot derive from
// capability flags alone
type Handler interface {
	// HasKeyframeSupport reports whether a keyframe interval is configured
	HasKeyframeSupport(c Codec) bool
	// HasThreadingSupport reports whether a thread count is configured
	HasThreadingSupport(c Codec) bool
	// IsHardwareEncoder reports whether the codec can take GPU surfaces
	IsHardwareEncoder(c Codec) bool
	// OverrideFormat may replace the negotiated target format, e.g. from a
	// profile chosen in the custom options
	OverrideFormat(c Codec, target pixfmt.PixelFormat, options map[string]string) pixfmt.PixelFormat
	// ProcessPacket may adjust a packet before it reaches the consumer
	ProcessPacket(c Codec, p *Packet)
}

// Lookup resolves the handler for an encoder name
type Lookup interface {
	Lookup(name string) Handler
}

// LookupFunc adapts a function to Lookup
type LookupFunc func(name string) Handler

func (fn LookupFunc) Lookup(name string) Handler {
	return fn(name)
}

// DefaultHandler derives everything from capability flags
type DefaultHandler struct{}

func (DefaultHandler) HasKeyframeSupport(c Codec) bool {
	return !c.Capabilities().Has(CapIntraOnly)
}

func (DefaultHandler) HasThreadingSupport(c Codec) bool {
	caps := c.Capabilities()
	return caps.Has(CapFrameThreads) || caps.Has(CapSliceThreads)
}

func (DefaultHandler) IsHardwareEncoder(c Codec) bool {
	return c.Capabilities().Has(CapHardware)
}

func (DefaultHandler) OverrideFormat(_ Codec, target pixfmt.PixelFormat, _ map[string]string) pixfmt.PixelFormat {
	return target
}

func (DefaultHandler) ProcessPacket(Codec, *Packet) {}

// NVENCHandler always configures a keyframe interval and reports hardware
// support even when the codec hides its flags
type NVENCHandler struct {
	DefaultHandler
}

func (NVENCHandler) HasKeyframeSupport(Codec) bool { return true }

func (NVENCHandler) IsHardwareEncoder(Codec) bool { return true }

// ProResHandler picks a 10-bit 4:2:2 or 4:4:4 layout from the profile option
type ProResHandler struct {
	DefaultHandler
}

func (ProResHandler) OverrideFormat(_ Codec, target pixfmt.PixelFormat, options map[string]string) pixfmt.PixelFormat {
	switch strings.ToLower(options["profile"]) {
	case "4", "4444", "5", "4444xq", "xq":
		return pixfmt.YUV444P10
	case "0", "proxy", "1", "lt", "2", "standard", "3", "hq":
		return pixfmt.YUV422P10
	}
	return target
}

// Registry maps encoder names to handlers, falling back to DefaultHandler
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry returns a registry with the built-in handlers
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		fallback: DefaultHandler{},
	}
	for _, name := range []string{"h264_nvenc", "hevc_nvenc", "av1_nvenc"} {
		r.Register(name, NVENCHandler{})
	}
	r.Register("prores_aw", ProResHandler{})
	r.Register("prores_ks", ProResHandler{})
	return r
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Lookup(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[name]; ok {
		return h
	}
	return r.fallback
}
