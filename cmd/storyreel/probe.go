package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/video"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the media tools and export containers available on this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(nil); err != nil {
			return err
		}

		for _, bin := range []string{cfg.Paths.FFmpeg, cfg.Paths.FFprobe, cfg.Paths.FFplay} {
			if path, ok := system.LookPath(bin); ok {
				fmt.Printf("[+] %s: %s\n", bin, path)
			} else {
				fmt.Printf("[-] %s: not found\n", bin)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()
		caps, err := video.ProbeCapabilities(ctx, cfg.Paths.FFmpeg)
		if err != nil {
			return err
		}
		for _, c := range video.Candidates {
			mark := "-"
			if caps.Supports(c) {
				mark = "+"
			}
			fmt.Printf("[%s] %-14s %s\n", mark, c.Name, c.MimeType)
		}
		chosen, ok := video.Negotiate(caps, video.Candidates, cfg.Video.VideoEncoder)
		if ok {
			fmt.Printf("[*] Exports will use %s\n", chosen.Name)
		} else {
			fmt.Printf("[!] No preferred container supported, exports fall back to %s\n", chosen.Name)
		}
		fmt.Printf("[*] %s\n", system.CurrentStats())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd, versionCmd)
}
