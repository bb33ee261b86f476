package desfire

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/tlv"
	"github.com/gregLibert/desfire/pkg/transport"
)

// step is one expected exchange of a scriptedLink. A nil tx is not checked.
type step struct {
	opt  transport.Option
	tx   []byte
	rx   []byte
	more bool
	err  error
}

// scriptedLink replays a fixed list of exchanges and fails the test on any
// deviation.
type scriptedLink struct {
	t     *testing.T
	size  int
	steps []step
	sent  [][]byte
}

func newScriptedLink(t *testing.T, steps ...step) *scriptedLink {
	t.Helper()
	return &scriptedLink{t: t, size: 256, steps: steps}
}

func (l *scriptedLink) FrameSize() int { return l.size }

func (l *scriptedLink) Exchange(opt transport.Option, data []byte) ([]byte, bool, error) {
	l.t.Helper()
	require.NotEmpty(l.t, l.steps, "unexpected exchange %s %s", opt, tlv.Upper(data))
	st := l.steps[0]
	l.steps = l.steps[1:]
	l.sent = append(l.sent, bytes.Clone(data))

	require.Equal(l.t, st.opt, opt, "option of exchange %d", len(l.sent))
	if st.tx != nil {
		require.Equal(l.t, tlv.Upper(st.tx), tlv.Upper(data), "frame %d", len(l.sent))
	}
	return bytes.Clone(st.rx), st.more, st.err
}

func (l *scriptedLink) done() {
	l.t.Helper()
	require.Empty(l.t, l.steps, "exchanges left unplayed")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, tr transport.Transport, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	s, err := New(tr, opts...)
	require.NoError(t, err)
	return s
}

// frame concatenates byte strings.
func frame(parts ...[]byte) []byte {
	return concat(parts...)
}

func seq(n int, start byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}

type recordingTMI struct {
	resets int
	data   [][]byte
}

func (r *recordingTMI) Reset() error {
	r.resets++
	r.data = nil
	return nil
}

func (r *recordingTMI) Collect(header, data []byte) error {
	r.data = append(r.data, concat(header, data))
	return nil
}

type recordingPC struct {
	mode AuthMode
	enc  []byte
	mac  []byte
	n    int
}

func (r *recordingPC) SetSessionKeys(mode AuthMode, enc, mac []byte) {
	r.mode, r.enc, r.mac = mode, enc, mac
	r.n++
}
