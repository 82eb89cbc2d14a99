package live

import (
	"bytes"
	"time"

	"github.com/vaani-ai/vaani/pkg/core/audio"
)

// Utterance is one contiguous unit of speech bounded by silence. Ownership
// of the PCM buffer transfers to the receiver on emission; the segmenter
// never touches it again.
type Utterance struct {
	PCM       []byte
	Start     time.Duration // offset of the utterance within the input stream
	End       time.Duration
	Truncated bool // input stream ended before a silence boundary
}

// Segmenter slices a live PCM frame stream into utterances. It keeps a
// rolling RMS energy estimate per frame: speech begins on the first frame
// above the energy threshold, and the utterance commits once trailing
// silence reaches SilenceCommit or the length cap is hit.
//
// Leading silence is discarded except for the last PrefixPadding worth,
// which is ring-buffered and prepended so the onset is not clipped.
//
// The segmenter is not safe for concurrent use; the session loop drives it
// from a single goroutine.
type Segmenter struct {
	cfg      SegmenterConfig
	audioCfg audio.Config

	prefix   *audio.RingBuffer
	buf      bytes.Buffer
	inSpeech bool
	silence  time.Duration // current trailing silence run
	offset   time.Duration // stream position consumed so far
	start    time.Duration // start offset of the in-progress utterance
}

// NewSegmenter creates a segmenter for the given thresholds and PCM format.
func NewSegmenter(cfg SegmenterConfig, audioCfg audio.Config) *Segmenter {
	s := &Segmenter{
		cfg:      cfg,
		audioCfg: audioCfg,
	}
	if cfg.PrefixPadding > 0 {
		s.prefix = audio.NewRingBuffer(audioCfg, int(cfg.PrefixPadding/time.Millisecond))
	}
	return s
}

// Feed consumes one PCM frame and returns a committed utterance when a
// boundary is reached.
func (s *Segmenter) Feed(frame []byte) (*Utterance, bool) {
	if len(frame) == 0 {
		return nil, false
	}
	d := s.duration(len(frame))
	voiced := audio.CalculateRMSEnergy(frame) >= s.cfg.EnergyThreshold

	if !s.inSpeech {
		if !voiced {
			if s.prefix != nil {
				s.prefix.Write(frame)
			}
			s.offset += d
			return nil, false
		}
		s.begin(frame)
		s.offset += d
		return s.commitIfCapped()
	}

	s.buf.Write(frame)
	s.offset += d
	if voiced {
		s.silence = 0
	} else {
		s.silence += d
		if s.silence >= s.cfg.SilenceCommit {
			return s.commit(false), true
		}
	}
	return s.commitIfCapped()
}

// Flush commits the in-progress utterance when the input stream ends
// mid-speech. The result is marked Truncated.
func (s *Segmenter) Flush() (*Utterance, bool) {
	if !s.inSpeech || s.buf.Len() == 0 {
		return nil, false
	}
	return s.commit(true), true
}

// Reset discards all buffered audio and returns to the idle state. The
// stream position is preserved.
func (s *Segmenter) Reset() {
	s.buf = bytes.Buffer{}
	s.inSpeech = false
	s.silence = 0
	if s.prefix != nil {
		s.prefix.Clear()
	}
}

// begin starts a new utterance at speech onset, prepending any buffered
// prefix padding.
func (s *Segmenter) begin(frame []byte) {
	s.inSpeech = true
	s.silence = 0
	s.start = s.offset
	if s.prefix != nil {
		pad := s.prefix.Read()
		if len(pad) > 0 {
			s.start -= s.duration(len(pad))
			s.buf.Write(pad)
		}
		s.prefix.Clear()
	}
	s.buf.Write(frame)
}

// commitIfCapped commits early once the utterance hits the length cap.
func (s *Segmenter) commitIfCapped() (*Utterance, bool) {
	if s.inSpeech && s.cfg.MaxUtterance > 0 && s.offset-s.start >= s.cfg.MaxUtterance {
		return s.commit(false), true
	}
	return nil, false
}

func (s *Segmenter) commit(truncated bool) *Utterance {
	utt := &Utterance{
		PCM:       s.buf.Bytes(),
		Start:     s.start,
		End:       s.offset,
		Truncated: truncated,
	}
	// Ownership of the buffer transfers with the utterance; start fresh.
	s.buf = bytes.Buffer{}
	s.inSpeech = false
	s.silence = 0
	return utt
}

func (s *Segmenter) duration(n int) time.Duration {
	bps := s.audioCfg.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}
