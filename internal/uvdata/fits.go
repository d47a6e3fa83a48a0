package uvdata

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FITS layout constants.
const (
	fitsBlockSize = 2880
	fitsCardSize  = 80
	cardsPerBlock = fitsBlockSize / fitsCardSize
)

// errNoMoreHDUs marks a clean end of file between HDUs.
var errNoMoreHDUs = errors.New("no more HDUs")

// Card is a single FITS header record.
type Card struct {
	Key     string
	Value   string
	Comment string
}

// Header is an ordered FITS header with keyword lookup.
type Header struct {
	cards []Card
	index map[string]int
}

func newHeader() *Header {
	return &Header{index: make(map[string]int)}
}

func (h *Header) add(c Card) {
	h.cards = append(h.cards, c)
	if _, seen := h.index[c.Key]; !seen && c.Key != "" {
		h.index[c.Key] = len(h.cards) - 1
	}
}

// Cards returns the header records in file order.
func (h *Header) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.index[key]
	return ok
}

// String returns the string value of key.
func (h *Header) String(key string) (string, bool) {
	i, ok := h.index[key]
	if !ok {
		return "", false
	}
	return h.cards[i].Value, true
}

// Int returns the integer value of key.
func (h *Header) Int(key string) (int, error) {
	raw, ok := h.String(key)
	if !ok {
		return 0, fmt.Errorf("header keyword %s is missing", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// Some writers emit integral values as floats ("4.0").
		f, ferr := parseFITSFloat(raw)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("header keyword %s: %q is not an integer", key, raw)
		}
		return int(f), nil
	}
	return v, nil
}

// IntDefault returns the integer value of key, or def when key is absent.
func (h *Header) IntDefault(key string, def int) (int, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Int(key)
}

// Float returns the floating point value of key.
func (h *Header) Float(key string) (float64, error) {
	raw, ok := h.String(key)
	if !ok {
		return 0, fmt.Errorf("header keyword %s is missing", key)
	}
	v, err := parseFITSFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("header keyword %s: %q is not a number", key, raw)
	}
	return v, nil
}

// FloatDefault returns the float value of key, or def when key is absent.
func (h *Header) FloatDefault(key string, def float64) (float64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Float(key)
}

func parseFITSFloat(raw string) (float64, error) {
	// Fortran-style exponents are legal in FITS.
	return strconv.ParseFloat(strings.NewReplacer("D", "E", "d", "e").Replace(raw), 64)
}

// parseCard splits one 80-byte record into keyword, value and comment.
func parseCard(raw []byte) Card {
	line := string(raw)
	key := strings.TrimSpace(line[:8])
	if len(line) < 10 || line[8:10] != "= " {
		// Commentary card (COMMENT, HISTORY, blank) or END.
		return Card{Key: key, Comment: strings.TrimSpace(line[8:])}
	}

	rest := line[10:]
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, "'") {
		value, after := parseQuoted(trimmed[1:])
		return Card{Key: key, Value: value, Comment: commentAfter(after)}
	}

	value, comment, _ := strings.Cut(rest, "/")
	return Card{Key: key, Value: strings.TrimSpace(value), Comment: strings.TrimSpace(comment)}
}

// parseQuoted reads a FITS string body (a doubled quote escapes one) and returns the
// value with trailing blanks removed plus the text after the closing quote.
func parseQuoted(s string) (string, string) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return strings.TrimRight(b.String(), " "), s[i+1:]
	}
	return strings.TrimRight(b.String(), " "), ""
}

func commentAfter(s string) string {
	_, comment, found := strings.Cut(s, "/")
	if !found {
		return ""
	}
	return strings.TrimSpace(comment)
}

// readHeader reads header blocks from r until the END card. It returns the
// header and the number of bytes consumed (always a multiple of 2880).
func readHeader(r io.Reader) (*Header, int64, error) {
	h := newHeader()
	block := make([]byte, fitsBlockSize)
	var consumed int64

	for {
		n, err := io.ReadFull(r, block)
		if err != nil {
			if consumed == 0 && n == 0 && errors.Is(err, io.EOF) {
				return nil, 0, errNoMoreHDUs
			}
			return nil, consumed, fmt.Errorf("reading FITS header block: %w", err)
		}
		consumed += fitsBlockSize

		for i := range cardsPerBlock {
			card := parseCard(block[i*fitsCardSize : (i+1)*fitsCardSize])
			if card.Key == "END" {
				return h, consumed, nil
			}
			h.add(card)
		}
	}
}

// dataSize returns the unpadded size in bytes of the data unit that
// follows header h.
func dataSize(h *Header) (int64, error) {
	bitpix, err := h.Int("BITPIX")
	if err != nil {
		return 0, err
	}
	naxis, err := h.Int("NAXIS")
	if err != nil {
		return 0, err
	}
	if naxis == 0 {
		return 0, nil
	}

	elems := int64(1)
	for i := 1; i <= naxis; i++ {
		n, axisErr := h.Int("NAXIS" + strconv.Itoa(i))
		if axisErr != nil {
			return 0, axisErr
		}
		if n < 0 {
			return 0, fmt.Errorf("NAXIS%d is negative", i)
		}
		elems *= int64(n)
	}

	pcount, err := h.IntDefault("PCOUNT", 0)
	if err != nil {
		return 0, err
	}
	gcount, err := h.IntDefault("GCOUNT", 1)
	if err != nil {
		return 0, err
	}

	bytesPer := int64(bitpix)
	if bytesPer < 0 {
		bytesPer = -bytesPer
	}
	return bytesPer / 8 * int64(gcount) * (int64(pcount) + elems), nil
}

// paddedSize rounds n up to a whole number of FITS blocks.
func paddedSize(n int64) int64 {
	if n%fitsBlockSize == 0 {
		return n
	}
	return (n/fitsBlockSize + 1) * fitsBlockSize
}

// HDU locates one header-data unit inside a FITS file.
type HDU struct {
	Header     *Header
	DataOffset int64
	DataSize   int64
}

// scanHDUs walks every HDU in r, reading headers and seeking past data
// units. Data is never read.
func scanHDUs(r io.ReadSeeker) ([]HDU, error) {
	var (
		hdus   []HDU
		offset int64
	)
	for {
		h, consumed, err := readHeader(r)
		if errors.Is(err, errNoMoreHDUs) {
			if len(hdus) == 0 {
				return nil, errors.New("file contains no FITS header")
			}
			return hdus, nil
		}
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", len(hdus), err)
		}

		size, err := dataSize(h)
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", len(hdus), err)
		}

		dataOffset := offset + consumed
		hdus = append(hdus, HDU{Header: h, DataOffset: dataOffset, DataSize: size})

		offset = dataOffset + paddedSize(size)
		if _, err = r.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seeking past HDU %d data: %w", len(hdus)-1, err)
		}
	}
}
