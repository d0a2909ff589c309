package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/provmark/provmark/pkg/keys"
	"github.com/provmark/provmark/pkg/signing"
)

// signCmd represents the sign command
var signCmd = &cobra.Command{
	Use:   "sign [flags] IMAGE...",
	Short: "Sign media files",
	Long: `Sign each IMAGE with a private key and write the signature to IMAGE.sig.

The signature covers the file bytes and the metadata given with --meta. Changing
either afterwards makes verification fail.`,
	Example: `  provmark sign out.png
  provmark sign --private-key keys/studio_private.pem --meta user_id=alice --meta job=42 out.png
  echo "$KEY_PASSWORD" | provmark sign --password-stdin frames/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSignCommand,
}

func init() {
	signCmd.Flags().StringP("private-key", "k", "", "private key file (default from config)")
	signCmd.Flags().StringArrayP("meta", "m", nil, "metadata entry key=value covered by the signature (repeatable)")
	signCmd.Flags().BoolP("password", "p", false, "prompt for the private key password")
	signCmd.Flags().Bool("password-stdin", false, "read the private key password from stdin")
}

func runSignCommand(cmd *cobra.Command, args []string) error {
	keyPath := stringFlagOr(cmd, "private-key", appConfig.KeyPaths().PrivateKey)

	pairs, _ := cmd.Flags().GetStringArray("meta")
	md, err := parseMetadata(pairs)
	if err != nil {
		return err
	}

	password, err := passwordFromFlags(cmd, false)
	if err != nil {
		return err
	}

	km := keys.NewManager(keys.WithLogger(logger))
	kp, err := km.LoadPrivate(keyPath, password)
	if err != nil {
		if errors.Is(err, keys.ErrDecryption) {
			return errors.Wrap(err, "use --password or --password-stdin with the correct password")
		}
		return err
	}

	mgr := signing.NewManager(km, signing.WithLogger(logger))
	for _, image := range args {
		rec, err := mgr.SignFile(image, kp, md)
		if err != nil {
			return errors.Wrapf(err, "failed to sign %s", image)
		}
		pterm.Success.Printfln("%s signed (%s, key %s)", image, rec.Algorithm, rec.KeyFingerprint)
	}
	return nil
}

// parseMetadata turns key=value pairs into signature metadata
func parseMetadata(pairs []string) (signing.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	md := make(signing.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("metadata entry %q must be key=value", pair)
		}
		md[key] = value
	}
	return md, nil
}
