package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
)

// Compression is the codec wrapped around the encoded report.
type Compression string

// Supported compressions.
const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Codec errors.
var (
	ErrUnknownFormat  = errors.New("unknown report format")
	ErrSchemaVersion  = errors.New("unsupported report schema version")
	ErrTruncated      = errors.New("report is truncated")
	ErrMalformedLines = errors.New("malformed ndjson report")
)

// ndjson record types.
const (
	lineHeader = "header"
	lineBatch  = "batch"
	lineFooter = "footer"
)

type ndjsonLine struct {
	Type    string                `json:"type"`
	Report  *Report               `json:"report,omitempty"`
	Batch   *pipeline.BatchResult `json:"batch,omitempty"`
	Batches *int                  `json:"batches,omitempty"`
}

// CompressionFromPath picks the compression from the file extension.
func CompressionFromPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// FormatFromPath infers the report format from the extension left after
// any compression suffix. Unknown extensions are JSON.
func FormatFromPath(path string) string {
	base := strings.ToLower(path)
	if CompressionFromPath(base) != CompressionNone {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	switch filepath.Ext(base) {
	case ".yaml", ".yml":
		return config.ReportFormatYAML
	case ".ndjson", ".jsonl":
		return config.ReportFormatNDJSON
	default:
		return config.ReportFormatJSON
	}
}

// Write encodes r to path in format (inferred from path when empty),
// compressed according to the extension. The file is replaced atomically.
func Write(path, format string, r *Report) (err error) {
	if format == "" {
		format = FormatFromPath(path)
	}

	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	cw, err := compressWriter(tmp, CompressionFromPath(path))
	if err != nil {
		return err
	}
	if err = Encode(cw, format, r); err != nil {
		return err
	}
	if err = cw.Close(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming report: %w", err)
	}
	return nil
}

// Read loads a report written by Write. Format and compression come from
// the extension.
func Read(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()

	rc, err := decompressReader(f, CompressionFromPath(path))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, err := Decode(rc, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	return r, nil
}

// Encode writes r to w in format.
func Encode(w io.Writer, format string, r *Report) error {
	switch format {
	case config.ReportFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case config.ReportFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	case config.ReportFormatNDJSON:
		return encodeNDJSON(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Decode reads a report in format from rd and checks its schema version.
func Decode(rd io.Reader, format string) (*Report, error) {
	var (
		r   *Report
		err error
	)
	switch format {
	case config.ReportFormatJSON:
		r = &Report{}
		err = json.NewDecoder(rd).Decode(r)
	case config.ReportFormatYAML:
		r = &Report{}
		err = yaml.NewDecoder(rd).Decode(r)
	case config.ReportFormatNDJSON:
		r, err = decodeNDJSON(rd)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if err = CheckSchema(r.SchemaVersion); err != nil {
		return nil, err
	}
	return r, nil
}

// CheckSchema reports whether version is readable by this build.
func CheckSchema(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrSchemaVersion, version)
	}
	c, err := semver.NewConstraint(schemaConstraint)
	if err != nil {
		return fmt.Errorf("parsing schema constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrSchemaVersion, version, schemaConstraint)
	}
	return nil
}

func encodeNDJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)

	header := *r
	header.Batches = nil
	if err := enc.Encode(ndjsonLine{Type: lineHeader, Report: &header}); err != nil {
		return fmt.Errorf("encoding report header: %w", err)
	}
	for i := range r.Batches {
		if err := enc.Encode(ndjsonLine{Type: lineBatch, Batch: &r.Batches[i]}); err != nil {
			return fmt.Errorf("encoding batch %d: %w", i, err)
		}
	}
	n := len(r.Batches)
	if err := enc.Encode(ndjsonLine{Type: lineFooter, Batches: &n}); err != nil {
		return fmt.Errorf("encoding report footer: %w", err)
	}
	return nil
}

func decodeNDJSON(rd io.Reader) (*Report, error) {
	dec := json.NewDecoder(rd)
	var r *Report
	for {
		var line ndjsonLine
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrTruncated
			}
			return nil, fmt.Errorf("%w: %w", ErrMalformedLines, err)
		}

		switch line.Type {
		case lineHeader:
			if r != nil || line.Report == nil {
				return nil, fmt.Errorf("%w: unexpected header", ErrMalformedLines)
			}
			r = line.Report
		case lineBatch:
			if r == nil || line.Batch == nil {
				return nil, fmt.Errorf("%w: batch before header", ErrMalformedLines)
			}
			r.Batches = append(r.Batches, *line.Batch)
		case lineFooter:
			if r == nil || line.Batches == nil {
				return nil, fmt.Errorf("%w: footer before header", ErrMalformedLines)
			}
			if *line.Batches != len(r.Batches) {
				return nil, fmt.Errorf("%w: footer counts %d batches, read %d",
					ErrTruncated, *line.Batches, len(r.Batches))
			}
			return r, nil
		default:
			return nil, fmt.Errorf("%w: unknown record type %q", ErrMalformedLines, line.Type)
		}
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return enc, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func decompressReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gr, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return zstdReadCloser{dec}, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}
