// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"peakbeat/internal/config"
	"peakbeat/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands selected on the command line.
const (
	CommandNone    = ""
	CommandPlay    = "play"
	CommandDevices = "devices"
)

// Options is the parsed command line.
type Options struct {
	Command    string
	Handle     string // Track to play.
	ConfigPath string

	DeviceID  int
	FFTSize   int
	Window    string
	Bars      int
	AssetDir  string
	WebSocket bool
	UDP       bool
	Verbose   bool

	Pick bool // play: choose the output device interactively first.
	TUI  bool // devices: browse in the picker instead of printing.

	changed map[string]bool
}

// Changed reports whether flag was given explicitly.
func (o *Options) Changed(flag string) bool {
	return o.changed[flag]
}

// Apply overlays explicitly given flags onto cfg.
func (o *Options) Apply(cfg *config.Config) {
	if o.Changed("device") {
		cfg.Audio.OutputDevice = o.DeviceID
	}
	if o.Changed("fft-size") {
		cfg.Audio.FFTSize = o.FFTSize
	}
	if o.Changed("window") {
		cfg.Audio.FFTWindow = o.Window
	}
	if o.Changed("bars") {
		cfg.Spectrum.BarCount = o.Bars
	}
	if o.Changed("asset-dir") {
		cfg.Audio.AssetDir = o.AssetDir
	}
	if o.Changed("ws") {
		cfg.Transport.WebSocketEnabled = o.WebSocket
	}
	if o.Changed("udp") {
		cfg.Transport.UDPEnabled = o.UDP
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
}

// ParseArgs parses args (without the program name). Help and version
// requests return Options with CommandNone.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.Get()
	options := &Options{changed: map[string]bool{}}

	record := func(flags *pflag.FlagSet) {
		flags.Visit(func(f *pflag.Flag) { options.changed[f.Name] = true })
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	playCmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a track and publish its spectrum peaks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandPlay
			options.Handle = args[0]
			record(cmd.Flags())
			return nil
		},
	}
	playCmd.Flags().BoolVarP(&options.Pick, "pick", "p", false,
		"Choose the output device interactively before playing")
	rootCmd.AddCommand(playCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandDevices
			record(cmd.Flags())
			return nil
		},
	}
	devicesCmd.Flags().BoolVar(&options.TUI, "tui", false, "Browse devices in an interactive picker")
	rootCmd.AddCommand(devicesCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&options.ConfigPath, "config", "",
		fmt.Sprintf("Path to the YAML configuration (default ./%s if present)", config.DefaultFile))
	flags.IntVarP(&options.DeviceID, "device", "d", config.DefaultOutputDevice,
		"Output device ID. Use the 'devices' command to see available devices.")
	flags.IntVarP(&options.FFTSize, "fft-size", "n", config.DefaultFFTSize,
		"Transform size in frames (power of two)")
	flags.StringVarP(&options.Window, "window", "w", config.DefaultFFTWindow,
		"Analysis window: Hann, Hamming, Blackman, BlackmanNuttall, BartlettHann, Lanczos, Nuttall")
	flags.IntVarP(&options.Bars, "bars", "b", 0,
		"Number of spectrum bars (default from config)")
	flags.StringVar(&options.AssetDir, "asset-dir", config.DefaultAssetDir,
		"Directory relative track paths are resolved against")
	flags.BoolVar(&options.WebSocket, "ws", false, "Broadcast peak events over WebSocket")
	flags.BoolVar(&options.UDP, "udp", false, "Stream bar heights over UDP")
	flags.BoolVarP(&options.Verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}
