package main

// this file contains all the code that directly uses the viper and pflag
// packages.
import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
	"github.com/cariboulabs/smistream/stream"
)

const configName = "smistream"

var (
	StreamConfig stream.Config // [stream] section
	BusSettings  smi.Settings  // [smi] section
	Session      session       // [session] section
)

// setDefaultConfig sets every section to its defaults.  These are the
// CaribouLite values; they are overridden by the configuration file and
// then by command-line flags.
func setDefaultConfig() {
	StreamConfig = stream.DefaultConfig()
	BusSettings = smi.DefaultSettings()
	Session = defaultSession()
}

// loadConfig reads configuration from a TOML-formatted file called
// 'smistream.toml', looked for in /etc/smistream and then in the current
// directory, or from file if that is not empty.  Values found in the file
// replace the current ones; keys it does not mention are left alone.
// Returns true if a config file was read.  Not finding a file is only an
// error if one was named.
func loadConfig(v *viper.Viper, file string) (bool, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc/smistream")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && file == "" {
			return false, nil
		}
		return false, fmt.Errorf("config: %w", err)
	}
	for _, sec := range []struct {
		key string
		dst any
	}{
		{"stream", &StreamConfig},
		{"smi", &BusSettings},
		{"session", &Session},
	} {
		if err := v.UnmarshalKey(sec.key, sec.dst); err != nil {
			return false, fmt.Errorf("config: [%s]: %w", sec.key, err)
		}
	}
	pkg.LogInfo(pkg.ComponentConfig, "loaded", "file", v.ConfigFileUsed())
	return true, nil
}

// newFlagSet declares the command-line flags.  Defaults shown in the usage
// text are the built-in ones; only flags given on the command line
// override the configuration file.
func newFlagSet() *pflag.FlagSet {
	d := defaultSession()
	fs := pflag.NewFlagSet("smistream", pflag.ContinueOnError)
	fs.String("config", "", "configuration file (default: smistream.toml in /etc/smistream or .)")
	fs.StringP("state", "s", d.State, "streaming state: rx_a, rx_b or tx")
	fs.StringP("file", "f", d.File, "output (rx) or input (tx) file; - for stdout / stdin")
	fs.Int64P("bytes", "n", d.Bytes, "stop after this many bytes; 0 means no limit")
	fs.Bool("simulate", d.Simulate, "use a simulated bus engine")
	fs.Float64("chunk-rate", d.ChunkRate, "simulated slot completions per second")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "text or json")
	fs.IntP("multiplier", "m", stream.DefaultConfig().ChunkMultiplier, "ring depth in chunks (2...32)")
	return fs
}

// applyFlags copies the flags set on the command line into the
// configuration.
func applyFlags(fs *pflag.FlagSet) (err error) {
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "state":
			Session.State, err = fs.GetString(f.Name)
		case "file":
			Session.File, err = fs.GetString(f.Name)
		case "bytes":
			Session.Bytes, err = fs.GetInt64(f.Name)
		case "simulate":
			Session.Simulate, err = fs.GetBool(f.Name)
		case "chunk-rate":
			Session.ChunkRate, err = fs.GetFloat64(f.Name)
		case "log-level":
			Session.LogLevel, err = fs.GetString(f.Name)
		case "log-format":
			Session.LogFormat, err = fs.GetString(f.Name)
		case "multiplier":
			StreamConfig.ChunkMultiplier, err = fs.GetInt(f.Name)
		}
	})
	return err
}
