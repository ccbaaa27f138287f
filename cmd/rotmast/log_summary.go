package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rotmast/internal/replay"
	"rotmast/internal/sentence"
)

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <log>",
		Short: "Print segment, record and sentence type counts of a replay log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLogSummary(a.out(), args[0])
		},
	}
}

type logSummary struct {
	Segments    int
	Sentences   int
	Invalid     int
	MaxDuration time.Duration
	TypeCounts  map[string]int
}

func summarizeSentenceLog(records []replay.Record) logSummary {
	s := logSummary{TypeCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasSentences := false
	segments := 0

	for _, r := range records {
		if r.IsStart() {
			segments++
			origin = r.At
			continue
		}
		hasSentences = true

		s.Sentences++
		if r.Timed {
			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if at > s.MaxDuration {
				s.MaxDuration = at
			}
		}

		id, ok := sentenceID(r.Sentence)
		if !ok {
			s.Invalid++
			continue
		}
		s.TypeCounts[id]++
	}
	if segments == 0 && hasSentences {
		segments = 1
	}
	s.Segments = segments

	return s
}

// sentenceID returns the mnemonic such as "$IIMWV", or "json" for a daemon
// report. Checksums are not verified.
func sentenceID(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		return "json", true
	}
	p, err := sentence.Parse(line, false)
	if err != nil || p.Type == "" {
		return "", false
	}
	return p.Fields[0], true
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeSentenceLog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	fmt.Fprintf(w, "invalid_sentences: %d\n", s.Invalid)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	keys := make([]string, 0, len(s.TypeCounts))
	for k := range s.TypeCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "type_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.TypeCounts[k])
	}
	return nil
}
