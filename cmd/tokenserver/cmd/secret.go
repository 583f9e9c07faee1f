package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syncgate/tokenserver/internal/util"
)

var secretLength int

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random secret suitable for the server environment variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if secretLength < 16 {
			return fmt.Errorf("refusing to generate a secret shorter than 16 bytes")
		}
		b, err := util.RandomBytes(secretLength)
		if err != nil {
			return err
		}
		fmt.Println(util.B64Encode(b))
		util.WipeBytes(b)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.Flags().IntVarP(&secretLength, "length", "l", 32, "Secret length in bytes")
}
