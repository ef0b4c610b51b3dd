package main

import (
    "log"

    "github.com/spf13/cobra"

    erosioncli "github.com/amirimatin/go-erosion/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "erosion",
        Short:         "go-erosion membership node and management CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    erosioncli.AddAll(root)
    return root
}
