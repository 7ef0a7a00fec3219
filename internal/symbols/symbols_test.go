package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, data []byte) ([]Record, error) {
	t.Helper()
	var recs []Record
	for rec, err := range Records(data) {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func TestPublicRoundTrip(t *testing.T) {
	in := []Public{
		{Flags: 0x2, Offset: 0x1000, Segment: 1, Name: "?Init@Engine@@UEAAXXZ"},
		{Offset: 0x40, Segment: 2, Name: "??_7Engine@@6B@"},
	}
	var data []byte
	for _, p := range in {
		data = AppendPublic(data, p)
	}
	assert.Zero(t, len(data)%4)

	recs, err := collect(t, data)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].Offset)

	for i, rec := range recs {
		p, err := ParsePublic(rec)
		require.NoError(t, err)
		assert.Equal(t, in[i], p)
	}
	assert.True(t, in[0].Flags.IsFunction())
	assert.False(t, in[0].Flags.IsCode())
}

func TestRecordsSkipsOtherKinds(t *testing.T) {
	data := []byte{0x06, 0x00, 0x0d, 0x11, 1, 2, 3, 4} // S_GDATA32 with four payload bytes
	data = AppendPublic(data, Public{Segment: 1, Name: "f"})

	recs, err := collect(t, data)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, S_GDATA32, recs[0].Kind)
	assert.Equal(t, []byte{1, 2, 3, 4}, recs[0].Data)

	_, err = ParsePublic(recs[0])
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestRecordsMalformed(t *testing.T) {
	data := AppendPublic(nil, Public{Segment: 1, Name: "ok"})
	data = append(data, 0xff, 0x00, 0x0e, 0x11) // claims 255 bytes

	recs, err := collect(t, data)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Len(t, recs, 1)
}

func TestParsePublicTruncated(t *testing.T) {
	_, err := ParsePublic(Record{Kind: S_PUB32, Data: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestRecordsStopEarly(t *testing.T) {
	var data []byte
	for range 3 {
		data = AppendPublic(data, Public{Name: "x"})
	}
	n := 0
	for range Records(data) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
