package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/opensource-finance/fraudlens/internal/assembler"
	"github.com/opensource-finance/fraudlens/internal/attribution"
	"github.com/opensource-finance/fraudlens/internal/cache"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/ingest"
	"github.com/spf13/cobra"
)

var (
	inputPath        string
	attributionsPath string
	outputPath       string
	topK             int
	model            string
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain a file of scored transactions and print ordered JSON rows",
	Long: `Reads fraud model output (JSON array or CSV), explains every record and
writes a JSON array of output rows in the fixed column order.

Example:
  fraudlens explain --input scored.csv --attributions shap.json --top-k 3`,
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().StringVarP(&inputPath, "input", "i", "", "records file (.json or .csv)")
	explainCmd.Flags().StringVarP(&attributionsPath, "attributions", "a", "", "attribution batch JSON ({features, rows})")
	explainCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")
	explainCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of top features per record (default from config)")
	explainCmd.Flags().StringVarP(&model, "model", "m", "", "text-generation model override")
	_ = explainCmd.MarkFlagRequired("input")
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	records, err := ingest.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	if err := ingest.Prepare(records); err != nil {
		return err
	}

	var batch *attribution.Batch
	if attributionsPath != "" {
		batch, err = readBatch(attributionsPath)
		if err != nil {
			return err
		}
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()

	_, asm, err := newPipeline(cfg, cacheImpl, nil)
	if err != nil {
		return err
	}

	if topK == 0 {
		topK = cfg.Attribution.TopK
	}
	out, err := asm.Process(ctx, &assembler.Input{
		Records:     records,
		Attribution: batch,
		TopK:        topK,
		Model:       model,
		StartTime:   time.Now(),
	})
	if err != nil {
		return err
	}

	if outputPath == "" {
		err = writeRows(cmd.OutOrStdout(), out)
	} else {
		var f *os.File
		if f, err = os.Create(outputPath); err != nil {
			return err
		}
		err = writeAndClose(f, out)
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	slog.Info("explanations written", "count", len(out), "output", outputPath)
	return nil
}

func readBatch(path string) (*attribution.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read attributions: %w", err)
	}
	defer f.Close()

	var batch attribution.Batch
	if err := json.NewDecoder(f).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode attributions: %w", err)
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return &batch, nil
}

// writeAndClose writes rows to wc and reports the close error when the
// write itself succeeded.
func writeAndClose(wc io.WriteCloser, recs []*domain.ExplainedRecord) (err error) {
	defer func() {
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
	}()
	return writeRows(wc, recs)
}

// writeRows writes a JSON array with one ordered object per record.
func writeRows(w io.Writer, recs []*domain.ExplainedRecord) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("[")
	for i, rec := range recs {
		row, err := rec.OrderedJSON()
		if err != nil {
			return err
		}
		if i > 0 {
			bw.WriteString(",")
		}
		bw.WriteString("\n  ")
		bw.Write(row)
	}
	bw.WriteString("\n]\n")
	return bw.Flush()
}
