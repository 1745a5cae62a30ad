package main

import "time"

// session holds the options of one smistream run
type session struct {
	State        string        `mapstructure:"state" desc:"streaming state: rx_a, rx_b or tx"`
	File         string        `mapstructure:"file" desc:"output file when receiving, input file when transmitting; - for stdout / stdin"`
	Bytes        int64         `mapstructure:"bytes" desc:"stop after this many bytes; 0 runs until interrupted or end of input"`
	Simulate     bool          `mapstructure:"simulate" desc:"use a simulated bus engine instead of /dev/mem"`
	ChunkRate    float64       `mapstructure:"chunk_rate" desc:"simulated slot completions per second"`
	DevMem       string        `mapstructure:"devmem" desc:"memory device the SMI registers are mapped from"`
	PeriBase     int64         `mapstructure:"peri_base" desc:"physical peripheral base address: 536870912 (Pi 1), 1056964608 (Pi 2, 3), 4261412864 (Pi 4)"`
	PollInterval time.Duration `mapstructure:"poll_interval" desc:"sleep between FIFO polls when the FIFO has nothing to move"`
	LogLevel     string        `mapstructure:"log_level" desc:"debug, info, warn or error"`
	LogFormat    string        `mapstructure:"log_format" desc:"text or json"`
}

func defaultSession() session {
	return session{
		State:        "rx_a",
		File:         "-",
		ChunkRate:    1000,
		DevMem:       "/dev/mem",
		PeriBase:     0xFE000000,
		PollInterval: 100 * time.Microsecond,
		LogLevel:     "warn",
		LogFormat:    "text",
	}
}
