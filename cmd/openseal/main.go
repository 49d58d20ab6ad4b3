// Package main is the entry point for the openseal binary.
// It provides a CLI for verifying sealed responses outside the gateway
// process; the gateway shells out to it when installed.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/highstation/gateway/pkg/openseal"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for openseal
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "openseal",
		Short: "OpenSeal response verification",
		Long: `Verifies that a sealed upstream response was produced by the holder of a
committed identity. The verify subcommand checks the Ed25519 signature over
the challenge nonce, the blinded identity hash, and the result digest, and
prints a line-oriented report:

  Signature Valid: ✅
  Identity Valid: ✅
  Result: Verified

The exit code is 0 only when the seal is fully valid.`,
	}

	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newBlindCmd())
	return rootCmd
}

func newVerifyCmd() *cobra.Command {
	var (
		responsePath string
		wax          string
		rootHash     string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a sealed response envelope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, responsePath, wax, rootHash)
		},
	}

	cmd.Flags().StringVar(&responsePath, "response", "", "Path to the JSON response envelope")
	cmd.Flags().StringVar(&wax, "wax", "", "Challenge nonce issued with the request (hex)")
	cmd.Flags().StringVar(&rootHash, "root-hash", "", "Committed identity root hash (hex, optional)")
	_ = cmd.MarkFlagRequired("response")
	_ = cmd.MarkFlagRequired("wax")

	return cmd
}

func runVerify(cmd *cobra.Command, responsePath, wax, rootHash string) error {
	//nolint:gosec // Response path comes from the invoking operator or gateway
	data, err := os.ReadFile(responsePath)
	if err != nil {
		return fmt.Errorf("failed to read response file: %w", err)
	}

	var env openseal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse response file: %w", err)
	}

	verifier := openseal.NewNativeVerifier(nil)
	result := verifier.Verify(cmd.Context(), &env, wax, rootHash)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Signature Valid: %s\n", checkmark(result.SignatureVerified))
	fmt.Fprintf(out, "Identity Valid: %s\n", checkmark(result.IdentityVerified))
	fmt.Fprintf(out, "Result: %s\n", result.Message)

	if !result.Valid {
		// Non-zero exit without cobra's usage noise
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		os.Exit(1)
	}
	return nil
}

func newBlindCmd() *cobra.Command {
	var (
		rootHash string
		wax      string
	)

	cmd := &cobra.Command{
		Use:   "blind",
		Short: "Compute the blinded identity hash for a nonce",
		Long: `Computes the hash a provider must embed as a_hash when answering a
challenge: the keyed digest of the identity root hash and the nonce.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			blinded, err := openseal.ComputeBlindedHash(rootHash, wax)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), blinded)
			return nil
		},
	}

	cmd.Flags().StringVar(&rootHash, "root-hash", "", "Identity root hash (hex)")
	cmd.Flags().StringVar(&wax, "wax", "", "Challenge nonce (hex)")
	_ = cmd.MarkFlagRequired("root-hash")
	_ = cmd.MarkFlagRequired("wax")

	return cmd
}

func checkmark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}
