package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// describeOutput is the structured form of the describe command.
type describeOutput struct {
	Kinds      []string           `json:"kinds" yaml:"kinds"`
	SizeMB     int64              `json:"size_mb" yaml:"size_mb"`
	Processor  string             `json:"processor" yaml:"processor"`
	Cached     bool               `json:"cached" yaml:"cached"`
	Descriptor *uvdata.Descriptor `json:"descriptor" yaml:"descriptor"`
}

func newDescribeCmd() *cobra.Command {
	var (
		output  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:     "describe <paths...>",
		Short:   "Validate input files and print the dataset descriptor",
		Example: `  mwapipe describe /data/1065880128 --output yaml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *configFromCmd(cmd)
			if noCache {
				cfg.Cache.Enabled = false
			}

			ds, err := loadDataset(cmd.Context(), &cfg, args)
			if err != nil {
				return err
			}
			size, err := ds.Files.SizeMB()
			if err != nil {
				return err
			}

			out := describeOutput{
				Kinds:      ds.Files.Kinds(),
				SizeMB:     size,
				Processor:  ds.Processor.Name(),
				Cached:     ds.Cached,
				Descriptor: ds.Descriptor,
			}
			if output == outputText {
				return renderDescribeText(cmd.OutOrStdout(), out)
			}
			return writeStructured(cmd.OutOrStdout(), output, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not read or write the descriptor cache")
	return cmd
}

func renderDescribeText(w io.Writer, out describeOutput) error {
	p := message.NewPrinter(language.English)
	d := out.Descriptor

	var sb strings.Builder
	sb.WriteString(p.Sprintf("Files        %s, %d MB\n", strings.Join(out.Kinds, ", "), out.SizeMB))
	sb.WriteString(p.Sprintf("Processor    %s (cached: %t)\n", out.Processor, out.Cached))
	sb.WriteString(p.Sprintf("Format       %s (BITPIX %d)\n", d.Format, d.BitPix))
	sb.WriteString(p.Sprintf("Records      %d x %s (%s total)\n",
		d.RecordCount, humanize.IBytes(uint64(d.RecordBytes)), humanize.IBytes(uint64(d.TotalBytes()))))
	sb.WriteString(p.Sprintf("Shape        %d antennas, %d rows, %d channels (%d per file)\n",
		d.Antennas, d.Rows, d.Channels, d.ChannelsPerFile))
	sb.WriteString(p.Sprintf("Integration  %.2fs\n", d.IntegrationTime))
	sb.WriteString("Ordering     " + d.OrderingKey + "\n")
	for _, obs := range d.Observations {
		sb.WriteString(p.Sprintf("  obs %s: %d files, %d records, ", obs.ObsID, len(obs.Files), obs.Records))
		sb.WriteString(fmt.Sprintf("GPS %.0f\n", obs.StartGPS))
	}

	_, err := fmt.Fprint(w, sb.String())
	return err
}
