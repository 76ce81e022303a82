package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/arcgis"
	"github.com/sells-group/gis-compliance/internal/pipeline"
)

var (
	auditWhere     string
	auditOutFields []string
	auditNear      string
	auditMiles     float64
	auditThreshold float64
	auditEPSG      int
	auditFormat    string
	auditOut       string
	auditSave      string
	auditUser      string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Fetch features and evaluate them against the minimum area",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("audit"); err != nil {
			return err
		}
		spatial, err := spatialFilter(auditNear, auditMiles)
		if err != nil {
			return err
		}
		threshold := auditThreshold
		if threshold <= 0 {
			threshold = cfg.Compliance.ThresholdSqMi
		}

		env, err := initAuditor(cmd.Context(), auditEPSG, auditSave != "")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Auditor.Audit(cmd.Context(), pipeline.AuditRequest{
			Filter:        arcgis.AttributeFilter{Where: auditWhere, OutFields: auditOutFields},
			Spatial:       spatial,
			ThresholdSqMi: threshold,
			Source:        cfg.Service.URL,
			SaveAs:        auditSave,
			User:          auditUser,
		})
		if err != nil {
			return err
		}
		if res.SessionID != "" {
			zap.L().Info("session saved", zap.String("name", auditSave), zap.String("id", res.SessionID))
		}
		return writeReport(cmd.OutOrStdout(), res.Report, auditFormat, auditOut)
	},
}

func init() {
	addQueryFlags(auditCmd, &auditWhere, &auditOutFields, &auditNear, &auditMiles)
	addReportFlags(auditCmd, &auditThreshold, &auditEPSG, &auditFormat, &auditOut)
	auditCmd.Flags().StringVar(&auditSave, "save", "", "save the audit as a named session")
	auditCmd.Flags().StringVar(&auditUser, "user", "", "analyst recorded on the saved session")
	rootCmd.AddCommand(auditCmd)
}
