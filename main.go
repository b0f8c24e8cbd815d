// ABOUTME: Entry point for the vsync feed monitor
// ABOUTME: Parses CLI flags, finds a daemon, and drives the TUI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/client"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/discovery"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/protocol"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/ui"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/version"
	"github.com/google/uuid"
)

var (
	serverAddr = flag.String("server", "", "Manual daemon address (skip mDNS)")
	name       = flag.String("name", "", "Monitor friendly name (default: hostname-vsync-mon)")
	logFile    = flag.String("log-file", "vsync-mon.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, stream updates as logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: stdout belongs to the TUI, log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	// Determine monitor name
	monitorName := *name
	if monitorName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		monitorName = fmt.Sprintf("%s-vsync-mon", hostname)
	}

	log.Printf("Starting vsync monitor %s (%s %s)", monitorName, version.Product, version.Version)

	// Find a daemon, by hand or over mDNS
	address := *serverAddr
	if address == "" {
		log.Printf("Browsing for vsync feeds...")
		disc := discovery.NewManager(discovery.Config{InstanceName: monitorName})
		if err := disc.Browse(); err != nil {
			log.Fatalf("mDNS browse failed: %v", err)
		}

		select {
		case feed := <-disc.Feeds():
			address = feed.Addr()
			log.Printf("Discovered feed %q at %s", feed.Name, address)
		case <-time.After(10 * time.Second):
			log.Fatalf("No vsync feed found after 10 seconds")
		}
		disc.Stop()
	}

	c := client.NewClient(client.Config{
		ServerAddr: address,
		ClientID:   uuid.New().String(),
		Name:       monitorName,
		Version:    protocol.Version,
	})

	if err := c.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer c.Close()

	welcome := c.Welcome()
	log.Printf("Connected to %s (%d displays)", welcome.Name, len(welcome.Displays))

	if useTUI {
		runTUI(c, address)
	} else {
		streamUpdates(c)
	}

	log.Printf("Monitor stopped")
}

// runTUI drives the interactive display table until quit
func runTUI(c *client.Client, address string) {
	tui := ui.NewTUI(ui.New(address, c.RequestRenderRate))

	// Forward feed updates into the TUI. The first Send blocks until the
	// program's event loop is running.
	go func() {
		welcome := c.Welcome()
		tui.Send(ui.ConnectedMsg{ServerName: welcome.Name, Displays: welcome.Displays})
		pumpUpdates(c, tui)
	}()

	// SIGTERM also quits; the TUI itself handles ctrl+c
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		tui.Stop()
	}()

	if err := tui.Run(); err != nil {
		log.Printf("TUI error: %v", err)
	}
}

// pumpUpdates moves feed messages onto the TUI until the connection dies
func pumpUpdates(c *client.Client, tui *ui.TUI) {
	for {
		select {
		case s := <-c.Samples:
			tui.Send(ui.SampleMsg(s))
		case m := <-c.Models:
			tui.Send(ui.ModelMsg(m))
		case p := <-c.Phases:
			tui.Send(ui.PhaseMsg(p))
		case r := <-c.RateChanges:
			tui.Send(ui.RateMsg(r))
		case <-c.Done():
			tui.Send(ui.DisconnectedMsg{})
			return
		}
	}
}

// streamUpdates logs feed messages until the connection dies or a signal
func streamUpdates(c *client.Client) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case s := <-c.Samples:
			log.Printf("sample  %-10s ts=%d accepted=%v total=%d rejected=%d",
				s.Display, s.Timestamp, s.Accepted, s.Total, s.Rejected)
		case m := <-c.Models:
			state := "locked"
			if m.NeedsSamples {
				state = "learning"
			}
			log.Printf("model   %-10s slope=%d intercept=%+d next=%d (%s)",
				m.Display, m.Slope, m.Intercept, m.NextVsync, state)
		case p := <-c.Phases:
			log.Printf("phase   %-10s t=%d rate=%.2f in_phase=%v",
				p.Display, p.TimePoint, p.RenderRate, p.InPhase)
		case r := <-c.RateChanges:
			log.Printf("rate    %-10s period=%d render=%.2f",
				r.Display, r.IdealPeriod, r.RenderRate)
		case <-c.Done():
			log.Printf("Feed connection closed")
			return
		case <-sigChan:
			log.Printf("Shutdown signal received")
			return
		}
	}
}
