// Command flow4d quantifies blood flow in 4D flow MRI acquisitions.
//
// Usage:
//
//	flow4d quantify --manifest study.yaml
//	flow4d phantom --phases 20 --frames
//	flow4d config init flow4d.yaml
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
