package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dgallion1/docaudio/internal/chunker"
	"github.com/dgallion1/docaudio/internal/parser"
	"github.com/spf13/cobra"
)

var chunkFlags struct {
	size    int
	overlap int
	preview int
}

var chunkCmd = &cobra.Command{
	Use:   "chunk FILE",
	Short: "Show how a document would be split into chunks",
	Long: `Extract the text of FILE and split it exactly as generate would,
without contacting the TTS service. Prints one row per chunk with its
length and an estimate of the narration time.`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	rootCmd.AddCommand(chunkCmd)
	chunkCmd.Flags().IntVarP(&chunkFlags.size, "chunk-size", "c", 0, "Maximum characters per chunk (default from config)")
	chunkCmd.Flags().IntVar(&chunkFlags.overlap, "overlap", -1, "Characters repeated between chunks (default 10% of chunk size)")
	chunkCmd.Flags().IntVar(&chunkFlags.preview, "preview", 40, "Characters of each chunk to show")
}

func runChunk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chunkFlags.size > 0 {
		cfg.ChunkSize = chunkFlags.size
	}
	if cmd.Flags().Changed("overlap") {
		cfg.ChunkOverlap = chunkFlags.overlap
	}

	doc, err := parser.Extractor{FallbackPdftotext: cfg.PDFFallbackPdftotext}.Document(args[0])
	if err != nil {
		return err
	}
	text := parser.Normalize(doc.Text())
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text extracted from %s", args[0])
	}
	chunks := chunker.Split(text, cfg.ChunkSize, cfg.Overlap())

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("#", "RUNES", "NARRATION", "START")
	for _, c := range chunks {
		t.Row(
			strconv.Itoa(c.Index),
			strconv.Itoa(utf8.RuneCountInString(c.Content)),
			chunker.EstimateSpeech(c.Content).Round(time.Second).String(),
			preview(c.Content, chunkFlags.preview),
		)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s, chunk size %d, overlap %d",
		sourceSummary(args[0], doc.Pages(), utf8.RuneCountInString(text)), cfg.ChunkSize, cfg.Overlap())))
	fmt.Println(t.Render())
	fmt.Printf("%d chunks, about %s of audio\n", len(chunks), chunker.EstimateChunks(chunks).Round(time.Second))
	return nil
}

// sourceSummary describes the extracted input; pages is 0 for formats
// without pagination.
func sourceSummary(name string, pages, runes int) string {
	if pages > 0 {
		return fmt.Sprintf("%s: %d pages, %d runes", name, pages, runes)
	}
	return fmt.Sprintf("%s: %d runes", name, runes)
}

// preview returns the first n runes of s on a single line.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
