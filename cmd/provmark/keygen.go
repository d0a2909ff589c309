package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/provmark/provmark/pkg/keys"
)

const minPasswordLength = 8

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key pair",
	Long: `Generate an RSA or ECDSA key pair for signing media.

The private key is written as <output>/<name>_private.pem with owner-only permissions,
the public key as <output>/<name>_public.pem. Share the public key with anyone who
needs to verify your files and keep the private key secret.`,
	Example: `  provmark keygen
  provmark keygen --output keys/ --name studio
  provmark keygen --algorithm ECDSA --password
  echo "$KEY_PASSWORD" | provmark keygen --password-stdin`,
	Args: cobra.NoArgs,
	RunE: runKeygenCommand,
}

func init() {
	keygenCmd.Flags().StringP("output", "o", "", "output directory for keys (default from config, keys/)")
	keygenCmd.Flags().StringP("name", "n", "", "base name for key files (default from config, signing_key)")
	keygenCmd.Flags().StringP("algorithm", "a", "", "signature algorithm: RSA or ECDSA (default from config, RSA)")
	keygenCmd.Flags().IntP("key-size", "s", 0, "RSA key size in bits (default from config, 2048)")
	keygenCmd.Flags().BoolP("password", "p", false, "prompt for a password to encrypt the private key")
	keygenCmd.Flags().Bool("password-stdin", false, "read the private key password from stdin")
}

func runKeygenCommand(cmd *cobra.Command, args []string) error {
	dir := stringFlagOr(cmd, "output", appConfig.Keys.Dir)
	name := stringFlagOr(cmd, "name", appConfig.Keys.Name)

	alg, err := keys.ParseAlgorithm(stringFlagOr(cmd, "algorithm", appConfig.Keys.Algorithm))
	if err != nil {
		return err
	}
	keySize := appConfig.Keys.KeySize
	if cmd.Flags().Changed("key-size") {
		keySize, _ = cmd.Flags().GetInt("key-size")
	}

	password, err := passwordFromFlags(cmd, true)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Key generation")
	rows := pterm.TableData{
		{"Algorithm", alg.String()},
	}
	if alg == keys.RSA {
		rows = append(rows, []string{"Key size", strconv.Itoa(keySize) + " bits"})
	}
	rows = append(rows,
		[]string{"Output", dir},
		[]string{"Base name", name},
		[]string{"Encrypted", yesNo(len(password) > 0)},
	)
	if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
		return err
	}

	km := keys.NewManager(keys.WithLogger(logger), keys.WithKDFIterations(appConfig.Keys.KDFIterations))
	kp, err := km.Generate(alg, keySize)
	if err != nil {
		return err
	}

	paths, err := km.WriteKeyPair(dir, name, kp, password)
	if err != nil {
		return err
	}

	fingerprint, err := keys.Fingerprint(kp.PublicKey)
	if err != nil {
		return err
	}

	pterm.Success.Println("Key pair generated")
	pterm.Info.Printfln("Private key: %s", paths.PrivateKey)
	pterm.Info.Printfln("Public key:  %s", paths.PublicKey)
	pterm.Info.Printfln("Fingerprint: %s", fingerprint)
	if len(password) == 0 {
		pterm.Warning.Println("The private key is not encrypted. Use --password for production keys.")
	}
	return nil
}

// passwordFromFlags reads the password selected by --password or --password-stdin.
// confirm asks for the password twice when prompting.
func passwordFromFlags(cmd *cobra.Command, confirm bool) ([]byte, error) {
	prompt, _ := cmd.Flags().GetBool("password")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	switch {
	case prompt && fromStdin:
		return nil, errors.New("--password and --password-stdin are mutually exclusive")
	case fromStdin:
		return readPasswordLine(cmd.InOrStdin())
	case !prompt:
		return nil, nil
	}

	password, err := promptPassword("Enter password for private key")
	if err != nil {
		return nil, err
	}
	if confirm {
		again, err := promptPassword("Confirm password")
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(password, again) {
			return nil, errors.New("passwords do not match")
		}
		if len(password) < minPasswordLength {
			pterm.Warning.Printfln("Password is short. Consider using at least %d characters.", minPasswordLength)
		}
	}
	return password, nil
}

// promptPassword reads a password from the terminal without echo
func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt+": ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read password")
	}
	return password, nil
}

func readPasswordLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to read password from stdin")
	}
	password := bytes.TrimSpace(line)
	if len(password) == 0 {
		return nil, errors.New("empty password on stdin")
	}
	return password, nil
}

func stringFlagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
