package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gis-compliance/internal/export"
	"github.com/sells-group/gis-compliance/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Save, load and list analysis sessions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("session")
	},
}

var (
	sessionReport  string
	sessionResults string
	sessionParams  map[string]string
	sessionUser    string
	sessionOut     string
)

var sessionSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a report, its result table and query parameters under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := session.SaveRequest{
			Name:       args[0],
			Parameters: make(map[string]any, len(sessionParams)),
			User:       sessionUser,
		}
		for k, v := range sessionParams {
			req.Parameters[k] = v
		}

		if sessionReport != "" {
			data, err := os.ReadFile(sessionReport)
			if err != nil {
				return eris.Wrapf(err, "read report %s", sessionReport)
			}
			if !json.Valid(data) {
				return eris.Errorf("report %s is not valid JSON", sessionReport)
			}
			req.Report = json.RawMessage(data)
		}
		if sessionResults != "" {
			rows, err := readResults(sessionResults)
			if err != nil {
				return err
			}
			req.Results = rows
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, err := st.Save(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var sessionLoadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Print a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSONTo(cmd.OutOrStdout(), sess, sessionOut)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved session keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		keys, err := st.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

// readResults loads a result table from an area workbook or a JSON array of
// flat records.
func readResults(path string) (session.Tabular, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return export.ReadAreasXLSX(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read results %s", path)
	}
	var rows session.Rows
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "parse results %s", path)
	}
	return rows, nil
}

func init() {
	sessionSaveCmd.Flags().StringVar(&sessionReport, "report", "", "compliance report JSON file")
	sessionSaveCmd.Flags().StringVar(&sessionResults, "results", "", "result table (.xlsx area table or JSON records)")
	sessionSaveCmd.Flags().StringToStringVar(&sessionParams, "param", nil, "query parameter key=value (repeatable)")
	sessionSaveCmd.Flags().StringVar(&sessionUser, "user", "", "analyst recorded on the session")
	sessionLoadCmd.Flags().StringVar(&sessionOut, "out", "", "output file (default stdout)")

	sessionCmd.AddCommand(sessionSaveCmd, sessionLoadCmd, sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}
