package bitstream

// Extractor captures the session header from the first packet only. Later
// packets leave the cached header untouched.
type Extractor struct {
	codec  Codec
	done   bool
	header Header
}

func NewExtractor(codec Codec) *Extractor {
	return &Extractor{codec: codec}
}

// Process scans packet if it is the first one seen. For out-of-band codecs
// the configuration is copied verbatim from extradata instead.
func (e *Extractor) Process(packet []byte, extradata []byte) {
	if e.done {
		return
	}
	e.done = true

	switch e.codec {
	case H264:
		e.header = ExtractH264(packet)
	case HEVC:
		e.header = ExtractHEVC(packet)
	default:
		if len(extradata) > 0 {
			e.header.Config = append([]byte(nil), extradata...)
		}
	}
}

// Header returns the cached header, empty before the first packet
func (e *Extractor) Header() Header {
	return e.header
}

// Done reports whether the first packet has been processed
func (e *Extractor) Done() bool {
	return e.done
}
