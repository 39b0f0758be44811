package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	importEventID int64
	importFile    string
)

var importSpeakersCmd = &cobra.Command{
	Use:   "import-speakers [username...]",
	Short: "Add usernames to an event's speaker list",
	Long: `Adds speakers to the latest event, or to the event given with --event.
Usernames come from the arguments or from --file: one per line, or the
first column of a .csv file. A leading @ is ignored.`,
	RunE: runImportSpeakers,
}

func init() {
	importSpeakersCmd.Flags().Int64Var(&importEventID, "event", 0, "event id (default: latest event)")
	importSpeakersCmd.Flags().StringVarP(&importFile, "file", "f", "", "read usernames from a .txt or .csv file")
	rootCmd.AddCommand(importSpeakersCmd)
}

func runImportSpeakers(cmd *cobra.Command, args []string) error {
	names := append([]string(nil), args...)
	if importFile != "" {
		fromFile, err := readUsernames(importFile)
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no usernames given")
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	var eventID *int64
	if cmd.Flags().Changed("event") {
		eventID = &importEventID
	}
	added, skipped, err := e.service().ImportSpeakers(ctx, eventID, names)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %d, skipped %d\n", added, skipped)
	return nil
}

func readUsernames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return parseCSV(f)
	}
	return parseLines(f)
}

func parseLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func parseCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	var out []string
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if i == 0 && strings.EqualFold(name, "username") {
			continue
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}
