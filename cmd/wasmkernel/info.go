package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmkernel/kernel"
	"github.com/caffeineduck/wasmkernel/language/python"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print kernel_info_reply as JSON",
	Long: `Print the kernel_info_reply content this kernel reports, without
loading the interpreter.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := kernel.DefaultInfo(python.New().LanguageInfo())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
