package uvdata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-utils/mwapipe/internal/uvdata/uvdatatest"
)

func card(s string) []byte {
	b := []byte(s)
	for len(b) < fitsCardSize {
		b = append(b, ' ')
	}
	return b
}

func TestParseCard(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Card
	}{
		{
			name: "integer with comment",
			raw:  "NAXIS   =                    2 / number of axes",
			want: Card{Key: "NAXIS", Value: "2", Comment: "number of axes"},
		},
		{
			name: "quoted string with escaped quote",
			raw:  "OBSERVER= 'O''Brien  '           / who",
			want: Card{Key: "OBSERVER", Value: "O'Brien", Comment: "who"},
		},
		{
			name: "string containing a slash",
			raw:  "FILENAME= 'a/b.fits'",
			want: Card{Key: "FILENAME", Value: "a/b.fits"},
		},
		{
			name: "commentary card",
			raw:  "COMMENT   written by the correlator",
			want: Card{Key: "COMMENT", Comment: "written by the correlator"},
		},
		{
			name: "end card",
			raw:  "END",
			want: Card{Key: "END"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCard(card(tt.raw)))
		})
	}
}

func TestHeader_Values(t *testing.T) {
	h := newHeader()
	h.add(Card{Key: "NCHANS", Value: "4.0"})
	h.add(Card{Key: "INTTIME", Value: "5.0D-1"})
	h.add(Card{Key: "OBSID", Value: "1065880128"})
	h.add(Card{Key: "BAD", Value: "T"})

	n, err := h.Int("NCHANS")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	f, err := h.Float("INTTIME")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-12)

	_, err = h.Int("BAD")
	require.Error(t, err)

	_, err = h.Int("MISSING")
	require.ErrorContains(t, err, "MISSING is missing")

	def, err := h.IntDefault("MISSING", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, def)

	fdef, err := h.FloatDefault("MISSING", 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, fdef, 0)

	assert.Len(t, h.Cards(), 4)
}

func TestScanHDUs(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(uvdatatest.EncodeHDU(uvdatatest.HDU{Cards: []uvdatatest.Card{
		{Key: "SIMPLE", Value: "T"},
		uvdatatest.Int("BITPIX", 8),
		uvdatatest.Int("NAXIS", 0),
	}}))
	buf.Write(uvdatatest.EncodeHDU(uvdatatest.HDU{
		Cards: []uvdatatest.Card{
			uvdatatest.Str("XTENSION", "IMAGE"),
			uvdatatest.Int("BITPIX", 8),
			uvdatatest.Int("NAXIS", 1),
			uvdatatest.Int("NAXIS1", 100),
		},
		Data: make([]byte, 100),
	}))
	buf.Write(uvdatatest.EncodeHDU(uvdatatest.HDU{
		Cards: []uvdatatest.Card{
			uvdatatest.Str("XTENSION", "IMAGE"),
			uvdatatest.Int("BITPIX", -32),
			uvdatatest.Int("NAXIS", 2),
			uvdatatest.Int("NAXIS1", 4),
			uvdatatest.Int("NAXIS2", 3),
		},
		Data: make([]byte, 48),
	}))

	hdus, err := scanHDUs(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, hdus, 3)

	assert.Equal(t, int64(2880), hdus[0].DataOffset)
	assert.Equal(t, int64(0), hdus[0].DataSize)
	assert.Equal(t, int64(5760), hdus[1].DataOffset)
	assert.Equal(t, int64(100), hdus[1].DataSize)
	assert.Equal(t, int64(5760+2880+2880), hdus[2].DataOffset)
	assert.Equal(t, int64(48), hdus[2].DataSize)

	xt, ok := hdus[1].Header.String("XTENSION")
	assert.True(t, ok)
	assert.Equal(t, "IMAGE", xt)
}

func TestScanHDUs_Errors(t *testing.T) {
	_, err := scanHDUs(bytes.NewReader(nil))
	require.ErrorContains(t, err, "no FITS header")

	// A header block without END followed by EOF.
	truncated := bytes.Repeat([]byte(" "), fitsBlockSize)
	_, err = scanHDUs(bytes.NewReader(truncated))
	require.Error(t, err)

	missingBitpix := uvdatatest.EncodeHDU(uvdatatest.HDU{Cards: []uvdatatest.Card{uvdatatest.Int("NAXIS", 0)}})
	_, err = scanHDUs(bytes.NewReader(missingBitpix))
	require.ErrorContains(t, err, "BITPIX")
}

func TestPaddedSize(t *testing.T) {
	assert.Equal(t, int64(0), paddedSize(0))
	assert.Equal(t, int64(2880), paddedSize(1))
	assert.Equal(t, int64(2880), paddedSize(2880))
	assert.Equal(t, int64(5760), paddedSize(2881))
}
