// Command mindwave-top shows live readings from a MindWave headset in the
// terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/headset"
	"github.com/banshee-data/mindwave.report/internal/monitoring"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

func main() {
	port := flag.String("port", "/dev/rfcomm0", "Serial port of the headset")
	baud := flag.Int("baud", serialport.DefaultBaudRate, "Serial baud rate")
	dev := flag.Bool("dev", false, "Show synthetic data instead of opening the serial port")
	logFile := flag.String("log", "", "Write diagnostics to this file (discarded when empty)")
	flag.Parse()

	if *logFile != "" {
		f, err := tea.LogToFile(*logFile, "mindwave-top")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
	} else {
		monitoring.SetLogger(nil)
	}

	opts := headset.Options{
		Path: *port,
		Port: serialport.PortOptions{BaudRate: *baud},
	}
	if *dev {
		capture := thinkgear.NewSyntheticGenerator(time.Now().UnixNano()).Capture(2000)
		opts.Opener = func(string, serialport.PortOptions) (serialport.SerialPorter, error) {
			return serialport.NewReplayPort(capture, 36, time.Second), nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := headset.New(opts)
	defer h.Close()

	p := tea.NewProgram(newModel(ctx, h), tea.WithAltScreen())
	h.Subscribe(func(s thinkgear.Sample, ev *blink.Event) {
		p.Send(sampleMsg{sample: s, blink: ev})
	})

	if err := h.Connect(ctx); err != nil {
		monitoring.Logf("connect: %v", err)
		go p.Send(errMsg{err: err})
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "mindwave-top: %v\n", err)
		os.Exit(1)
	}
}
