package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayush/peces-catalog/internal/auth"
)

var keyBits int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA key pair for encrypted login transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		privPEM, pubPEM, err := auth.GenerateKeyPair(keyBits)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "PRIVATE_KEY=%s\n\n", base64.StdEncoding.EncodeToString(privPEM))
		fmt.Fprintf(out, "%s", pubPEM)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keyBits, "bits", 2048, "RSA key size")
}
