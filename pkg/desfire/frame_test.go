package desfire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/tlv"
	"github.com/gregLibert/desfire/pkg/transport"
)

var af = []byte{0xAF}

func TestWriteDataChunking(t *testing.T) {
	t.Parallel()

	data := seq(200, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, tx: frame(tlv.Hex("3D 01 000000 C80000"), data[0:52]), rx: af},
		step{opt: transport.Default, tx: frame(af, data[52:104]), rx: af},
		step{opt: transport.Default, tx: frame(af, data[104:156]), rx: af},
		step{opt: transport.Default, tx: frame(af, data[156:200]), rx: []byte{0x00}},
	)
	s := newTestSession(t, link)

	require.NoError(t, s.WriteData(CommPlain, NativeChaining, 1, 0, data))
	link.done()
	assert.Len(t, link.sent[0], 60)
	assert.Len(t, link.sent[3], 45)
}

func TestWriteDataChunkSizeConfig(t *testing.T) {
	t.Parallel()

	data := seq(40, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, tx: frame(tlv.Hex("3D 02 100000 280000"), data[0:16]), rx: af},
		step{opt: transport.Default, tx: frame(af, data[16:32]), rx: af},
		step{opt: transport.Default, tx: frame(af, data[32:40]), rx: []byte{0x00}},
	)
	s := newTestSession(t, link)
	require.NoError(t, s.SetConfig(ConfigWriteChunkSize, 16))

	require.NoError(t, s.WriteData(CommPlain, NativeChaining, 2, 0x10, data))
	link.done()
}

func TestWriteDataErrorMidChain(t *testing.T) {
	t.Parallel()

	data := seq(100, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, rx: af},
		step{opt: transport.Default, rx: []byte{0x9D}},
	)
	s := newTestSession(t, link)

	err := s.WriteData(CommPlain, NativeChaining, 1, 0, data)
	require.ErrorIs(t, err, ErrPermissionDenied)
	link.done()

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "WriteData", e.Op)
	assert.Equal(t, Status(0x9D), e.Status)
}

func TestWriteDataEarlyCompletion(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, rx: []byte{0x00}},
	)
	s := newTestSession(t, link)

	err := s.WriteData(CommPlain, NativeChaining, 1, 0, seq(100, 0))
	require.ErrorIs(t, err, ErrProtocol)
	link.done()
}

func TestWriteDataISOChaining(t *testing.T) {
	t.Parallel()

	data := seq(100, 0)
	wire := frame(tlv.Hex("8D 03 000000 640000"), data)
	link := newScriptedLink(t,
		step{opt: transport.TxChaining, tx: wire[:60]},
		step{opt: transport.Default, tx: wire[60:], rx: []byte{0x00}},
	)
	link.size = 64
	s := newTestSession(t, link)

	require.NoError(t, s.WriteData(CommPlain, ISOChaining, 3, 0, data))
	link.done()
}

func TestReadDataChained(t *testing.T) {
	t.Parallel()

	data := seq(128, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, tx: tlv.Hex("BD 04 000000 000000"), rx: frame(data[0:59], af)},
		step{opt: transport.Default, tx: af, rx: frame(data[59:118], af)},
		step{opt: transport.Default, tx: af, rx: frame(data[118:], []byte{0x00})},
	)
	s := newTestSession(t, link)

	got, more, err := s.ReadData(CommPlain, NativeChaining, 4, 0, 0)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, data, got)
	link.done()
}

func TestReadDataLengthMismatch(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, rx: frame(seq(10, 0), []byte{0x00})},
	)
	s := newTestSession(t, link)

	_, _, err := s.ReadData(CommPlain, NativeChaining, 4, 0, 12)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestContinuationWithoutData(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, rx: af},
	)
	s := newTestSession(t, link)

	_, _, err := s.ReadData(CommPlain, NativeChaining, 4, 0, 0)
	require.ErrorIs(t, err, ErrProtocol)
	link.done()
}

func TestReadDataPausesWhenBufferFull(t *testing.T) {
	t.Parallel()

	data := seq(148, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, rx: frame(data[0:59], af)},
		step{opt: transport.Default, tx: af, rx: frame(data[59:118], af)},
	)
	s := newTestSession(t, link)
	require.NoError(t, s.SetConfig(ConfigRxBufferSize, 128))

	part, more, err := s.ReadData(CommPlain, NativeChaining, 4, 0, 148)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, data[:118], part)
	link.done()

	link.steps = []step{
		{opt: transport.Default, tx: af, rx: frame(data[118:], []byte{0x00})},
	}
	part, more, err = s.Continue()
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, data[118:], part)
	link.done()

	_, _, err = s.Continue()
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestReadDataTransportChaining(t *testing.T) {
	t.Parallel()

	data := seq(129, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, rx: data[0:60], more: true},
		step{opt: transport.RxChaining, rx: data[60:120], more: true},
	)
	link.size = 64
	s := newTestSession(t, link)
	require.NoError(t, s.SetConfig(ConfigRxBufferSize, 128))

	part, more, err := s.ReadData(CommPlain, NativeChaining, 4, 0, 0)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, data[:119], part)

	link.steps = []step{
		{opt: transport.RxChaining, rx: frame(data[120:], []byte{0x00})},
	}
	part, more, err = s.Continue()
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, data[119:], part)
	link.done()
}

func TestPendingChainAbandoned(t *testing.T) {
	t.Parallel()

	data := seq(118, 0)
	link := newScriptedLink(t,
		step{opt: transport.Default, rx: frame(data[0:59], af)},
		step{opt: transport.Default, rx: frame(data[59:118], af)},
		step{opt: transport.Default, tx: tlv.Hex("6F"), rx: tlv.Hex("0102 00")},
	)
	s := newTestSession(t, link)
	require.NoError(t, s.SetConfig(ConfigRxBufferSize, 128))

	_, more, err := s.ReadData(CommPlain, NativeChaining, 4, 0, 0)
	require.NoError(t, err)
	require.True(t, more)

	ids, err := s.GetFileIDs()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, ids)

	_, _, err = s.Continue()
	assert.ErrorIs(t, err, ErrInvalidParameter)
	link.done()
}

func TestWrappedSelectAndListFiles(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, tx: tlv.Hex("905A0000 03 010203 00"), rx: tlv.Hex("9100")},
		step{opt: transport.Default, tx: tlv.Hex("906F0000 00"), rx: tlv.Hex("000102 9100")},
		step{opt: transport.Default, tx: tlv.Hex("90F50000 01 07 00"), rx: tlv.Hex("91F0")},
	)
	s := newTestSession(t, link, WithWrappedMode(true))

	require.NoError(t, s.SelectApplication([3]byte{1, 2, 3}))
	assert.Equal(t, [3]byte{1, 2, 3}, s.AID())

	ids, err := s.GetFileIDs()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, ids)

	_, err = s.GetFileSettings(7)
	assert.ErrorIs(t, err, ErrFileNotFound)
	link.done()
}

func TestWrappedISOStatus(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, rx: tlv.Hex("6A82")},
	)
	s := newTestSession(t, link, WithWrappedMode(true))

	err := s.SelectApplication([3]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	info, err := s.GetConfig(ConfigAdditionalInfo)
	require.NoError(t, err)
	assert.Equal(t, 0, info)
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, tx: tlv.Hex("60"), rx: tlv.Hex("04010133001A05 AF")},
		step{opt: transport.Default, tx: af, rx: tlv.Hex("04010103001A05 AF")},
		step{opt: transport.Default, tx: af, rx: tlv.Hex("04D2A4D2A05C80 BA34BC5120 2421 00")},
	)
	s := newTestSession(t, link)

	v, err := s.GetVersion()
	require.NoError(t, err)
	link.done()
	assert.Equal(t, byte(0x04), v.HWVendorID)
	assert.Equal(t, byte(0x33), v.HWMajorVer)
	assert.Equal(t, byte(0x1A), v.SWStorageSize)
	assert.Equal(t, tlv.Hex("04D2A4D2A05C80"), v.UID)
	assert.Equal(t, tlv.Hex("BA34BC5120"), v.BatchNo)
	assert.Equal(t, byte(0x21), v.ProdYear)
}

func TestGenericFailureKeepsStatus(t *testing.T) {
	t.Parallel()

	link := newScriptedLink(t,
		step{opt: transport.Default, rx: []byte{0x1C}},
	)
	s := newTestSession(t, link)

	_, err := s.GetFileIDs()
	require.ErrorIs(t, err, ErrGenericFailure)

	info, err := s.GetConfig(ConfigAdditionalInfo)
	require.NoError(t, err)
	assert.Equal(t, 0x1C, info)
}
