package main

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/provmark/provmark/pkg/keys"
	"github.com/provmark/provmark/pkg/signing"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [flags] IMAGE...",
	Short: "Verify media signatures",
	Long: `Verify each IMAGE against its IMAGE.sig signature file and a public key.

Each file is reported as valid, invalid (the signature does not match), unsigned
(no signature file) or errored (missing file, missing key or unreadable signature
file). The command exits 0 only if every file is valid.`,
	Example: `  provmark verify out.png
  provmark verify --public-key keys/studio_public.pem --output json frames/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerifyCommand,
}

func init() {
	verifyCmd.Flags().StringP("public-key", "k", "", "public key file (default from config)")
	verifyCmd.Flags().StringP("output", "o", "text", "report format: text, json or yaml")
	verifyCmd.Flags().Bool("details", false, "show metadata and key details for each file")
}

// verifyReport is the machine-readable verification output
type verifyReport struct {
	Results []resultView  `json:"results" yaml:"results"`
	Summary verifySummary `json:"summary" yaml:"summary"`
}

type verifySummary struct {
	Total    int `json:"total" yaml:"total"`
	Valid    int `json:"valid" yaml:"valid"`
	Invalid  int `json:"invalid" yaml:"invalid"`
	Unsigned int `json:"unsigned" yaml:"unsigned"`
	Errored  int `json:"errored" yaml:"errored"`
}

type resultView struct {
	Image            string           `json:"image" yaml:"image"`
	Status           string           `json:"status" yaml:"status"`
	Reason           string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	Algorithm        string           `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	KeyFingerprint   string           `json:"key_fingerprint,omitempty" yaml:"key_fingerprint,omitempty"`
	FingerprintMatch bool             `json:"fingerprint_match" yaml:"fingerprint_match"`
	Metadata         signing.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func runVerifyCommand(cmd *cobra.Command, args []string) error {
	keyPath := stringFlagOr(cmd, "public-key", appConfig.KeyPaths().PublicKey)
	output, _ := cmd.Flags().GetString("output")
	details, _ := cmd.Flags().GetBool("details")

	switch output {
	case "text", "json", "yaml":
	default:
		return errors.Errorf("unsupported output format %q", output)
	}

	results := verifyFiles(args, keyPath, appConfig.Verify.Concurrency)
	report := buildReport(results)

	var err error
	switch output {
	case "json":
		err = writeJSON(cmd.OutOrStdout(), report)
	case "yaml":
		err = writeYAML(cmd.OutOrStdout(), report)
	default:
		err = printResults(results, report.Summary, details || verbose)
	}
	if err != nil {
		return err
	}

	if report.Summary.Valid != report.Summary.Total {
		return errNotVerified
	}
	return nil
}

// verifyFiles verifies images concurrently and returns the results in input order.
func verifyFiles(images []string, publicKeyPath string, concurrency int) []*signing.Result {
	mgr := signing.NewManager(keys.NewManager(keys.WithLogger(logger)), signing.WithLogger(logger))
	results := make([]*signing.Result, len(images))

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for i, image := range images {
		g.Go(func() error {
			results[i] = mgr.VerifyFile(image, publicKeyPath)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func buildReport(results []*signing.Result) verifyReport {
	count := func(s signing.Status) int {
		return lo.CountBy(results, func(r *signing.Result) bool { return r.Status == s })
	}

	return verifyReport{
		Results: lo.Map(results, func(r *signing.Result, _ int) resultView {
			view := resultView{
				Image:            r.ImagePath,
				Status:           r.Status.String(),
				Reason:           r.ReasonText(),
				FingerprintMatch: r.FingerprintMatch,
			}
			if r.Record != nil {
				view.Algorithm = r.Record.Algorithm.String()
				view.KeyFingerprint = r.Record.KeyFingerprint
				view.Metadata = r.Record.Metadata
			}
			return view
		}),
		Summary: verifySummary{
			Total:    len(results),
			Valid:    count(signing.StatusValid),
			Invalid:  count(signing.StatusInvalid),
			Unsigned: count(signing.StatusUnsigned),
			Errored:  count(signing.StatusErrored),
		},
	}
}

func printResults(results []*signing.Result, summary verifySummary, details bool) error {
	for _, r := range results {
		switch r.Status {
		case signing.StatusValid:
			pterm.Success.Printfln("%s: signature valid", r.ImagePath)
		case signing.StatusUnsigned:
			pterm.Warning.Printfln("%s: unsigned (%s)", r.ImagePath, r.ReasonText())
		default:
			pterm.Error.Printfln("%s: %s (%s)", r.ImagePath, r.Status, r.ReasonText())
		}

		if !details || r.Record == nil {
			continue
		}
		rows := pterm.TableData{
			{"Algorithm", r.Record.Algorithm.String()},
			{"Key fingerprint", r.Record.KeyFingerprint},
			{"Fingerprint match", yesNo(r.FingerprintMatch)},
		}
		if len(r.Record.Metadata) > 0 {
			md, err := json.MarshalIndent(r.Record.Metadata, "", "  ")
			if err != nil {
				return err
			}
			rows = append(rows, []string{"Metadata", string(md)})
		}
		if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
			return err
		}
	}

	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printfln("%d/%d valid, %d invalid, %d unsigned, %d errored",
		summary.Valid, summary.Total, summary.Invalid, summary.Unsigned, summary.Errored)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
