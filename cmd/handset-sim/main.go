// Command handset-sim runs the handset on a workstation: the 16x2 display and
// keypad live in the terminal, peers are simulated in process or reached
// through a real radio module on a serial port.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"handset-go/bus"
	"handset-go/drivers/atradio"
	"handset-go/services/handset"
	"handset-go/services/handset/config"
)

func main() {
	cfgPath := flag.String("config", "", "YAML configuration (default: built-in irrigation set)")
	logPath := flag.String("log", "handset-sim.log", "log file")
	level := flag.String("level", "info", "log level")
	port := flag.String("port", "", "serial device of a real radio module; empty simulates peers")
	baud := flag.Int("baud", 115200, "radio module baud rate")
	eepromPath := flag.String("eeprom", "handset.eeprom", "EEPROM image file")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9110")
	flag.Parse()

	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := setupLogger(logFile, *level)

	cfg := config.Default()
	if *cfgPath != "" {
		if cfg, err = config.LoadFile(*cfgPath); err != nil {
			log.WithError(err).Fatal("load config")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("signal, stopping")
		cancel()
	}()

	eeprom, err := openEEPROM(*eepromPath, eepromSize)
	if err != nil {
		log.WithError(err).Fatal("eeprom")
	}

	local := handset.NewPinMap()
	local.Set(batteryPin, batteryRaw)
	keys := &keypad{}
	buzz := &buzzer{}

	plant := newPlant()
	var radio handset.RadioPort
	if *port != "" {
		sp, err := openSerial(*port, *baud)
		if err != nil {
			log.WithError(err).Fatal("serial")
		}
		defer sp.Close()
		radio = sp
		plant = nil
	} else {
		air := atradio.NewAir()
		radio = air.Port()
		for _, p := range cfg.Peers {
			pins := plant.peer(p.Name)
			if _, err := handset.ServePeer(ctx, air.Port(), p.Addr, cfg.Network, pins, log.WithField("peer", p.Name)); err != nil {
				log.WithError(err).Fatalf("peer %s", p.Name)
			}
		}
	}

	b := bus.NewBus(16)

	if *metricsAddr != "" {
		m := newMetrics()
		m.serve(*metricsAddr, log)
		go m.run(ctx, b.NewConnection("metrics"))
	}

	board := handset.Board{
		Pins:   local,
		Keypad: keys,
		EEPROM: eeprom,
		Buzzer: buzz,
		Radio:  radio,
	}
	hs, err := handset.New(cfg, board, b.NewConnection("handset"), log.WithField("svc", "handset"))
	if err != nil {
		log.WithError(err).Fatal("handset")
	}
	done := make(chan struct{})
	go func() {
		hs.Run(ctx)
		close(done)
	}()

	p := tea.NewProgram(newModel(b.NewConnection("tui"), keys, buzz, plant), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.WithError(err).Error("tui")
	}
	cancel()
	<-done
	log.Info("exit")
}

func setupLogger(out *os.File, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	return log
}
