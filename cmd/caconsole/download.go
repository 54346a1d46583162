package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/client"
)

var caDownloadCmd = &cobra.Command{
	Use:   "download <caId>",
	Short: "Download a CA certificate or CRL file",
	Long: `Download the certificate or revocation list of a CA as served by the CA API.

The file is written to --out, to <caId>-certificate.pem style names in the
current directory when --out is empty, or to stdout when --out is "-".

Examples:
  caconsole ca download 1001
  caconsole ca download 1001 --crl --format der --out root.crl`,
	Args: cobra.ExactArgs(1),
	RunE: runCADownload,
}

var certDownloadCmd = &cobra.Command{
	Use:   "download <caId> <certId>",
	Short: "Download an issued certificate file",
	Args:  cobra.ExactArgs(2),
	RunE:  runCertDownload,
}

var (
	caDownloadCRL  bool
	downloadFormat string
	downloadOut    string
)

func init() {
	caCmd.AddCommand(caDownloadCmd)
	certCmd.AddCommand(certDownloadCmd)

	caDownloadCmd.Flags().BoolVar(&caDownloadCRL, "crl", false, "Download the CRL instead of the CA certificate")
	for _, c := range []*cobra.Command{caDownloadCmd, certDownloadCmd} {
		c.Flags().StringVar(&downloadFormat, "format", string(client.FormatPEM), "File encoding: pem, der")
		c.Flags().StringVarP(&downloadOut, "out", "o", "", `Output file ("-" for stdout)`)
	}
}

func runCADownload(cmd *cobra.Command, args []string) error {
	artifact := client.CACertificate(args[0], client.Format(downloadFormat))
	if caDownloadCRL {
		artifact = client.CACRL(args[0], client.Format(downloadFormat))
	}
	return download(cmd, artifact)
}

func runCertDownload(cmd *cobra.Command, args []string) error {
	return download(cmd, client.Certificate(args[0], args[1], client.Format(downloadFormat)))
}

func download(cmd *cobra.Command, artifact client.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	if downloadOut == "-" {
		_, err := apiClient.Download(cmd.Context(), artifact, cmd.OutOrStdout())
		return err
	}

	file := downloadOut
	if file == "" {
		file = artifact.FileName()
	}
	n, err := apiClient.DownloadFile(cmd.Context(), artifact, file)
	if err != nil {
		return fmt.Errorf("download %s: %w", artifact.Path(), err)
	}
	cliLogger.Info("artifact saved", zap.String("path", artifact.Path()), zap.String("file", file), zap.Int64("bytes", n))
	return printJSON(cmd, map[string]any{"link": artifact.Path(), "file": file, "bytes": n})
}
