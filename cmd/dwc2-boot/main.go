// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dwc2-boot (re)starts the USB bench. Bring-up is ordered:
// the TDAQ run-control must be listening before dwc2-srv dials in, so
// the processes start in sequence with a settle delay in between.
package main // import "github.com/go-lpc/dwc2/cmd/dwc2-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	settle = flag.Duration("settle", 2*time.Second, "delay between process start-ups")
	devmem = flag.String("dev", "/dev/mem", "device file exposing the DWC2 MMIO window")
)

func main() {
	flag.Parse()

	log.SetPrefix("dwc2-boot: ")
	log.SetFlags(0)

	dir := os.Getenv("DWC2LOGDIR")
	if dir == "" {
		dir = "/var/log/dwc2"
	}

	bench := []*exec.Cmd{
		exec.Command("tdaq-runctl", "-i"),
		exec.Command("dwc2-srv", *devmem),
	}

	// Take down whatever a previous boot left behind.
	for _, cmd := range bench {
		takedown(filepath.Base(cmd.Path))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	err := run(bench, dir, *settle, *doMon, *doFreq, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func takedown(name string) {
	kill := exec.Command("killall", name)
	kill.Stdout = os.Stdout
	kill.Stderr = os.Stderr
	if err := kill.Run(); err != nil {
		log.Printf("no stale %q to take down: %+v", name, err)
	}
}

// run brings the bench processes up in order and keeps them under
// watch until they exit or stop fires.
func run(bench []*exec.Cmd, dir string, settle time.Duration, doMon bool, freq time.Duration, stop chan os.Signal) error {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("could not create log directory %q: %w", dir, err)
	}

	var (
		kill     = make(chan struct{})
		stopOnce sync.Once
		shutdown = func() {
			stopOnce.Do(func() { close(kill) })
		}
	)
	go func() {
		<-stop
		shutdown()
	}()

	var grp errgroup.Group
	for i, cmd := range bench {
		if i > 0 {
			// Let the previous process open its sockets before the
			// next one dials in.
			select {
			case <-time.After(settle):
			case <-kill:
				return fmt.Errorf("interrupted during bench bring-up")
			}
		}

		out, err := launch(cmd, dir)
		if err != nil {
			// Tear down what already runs.
			shutdown()
			_ = grp.Wait()
			return err
		}

		if doMon {
			stopMon, err := monitor(cmd, dir, freq)
			if err != nil {
				return err
			}
			defer stopMon()
		}

		cmd := cmd
		grp.Go(func() error {
			return reap(cmd, out, kill)
		})
	}

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("bench died: %w", err)
	}
	return nil
}

// launch starts cmd with its output captured under dir.
func launch(cmd *exec.Cmd, dir string) (*os.File, error) {
	name := filepath.Base(cmd.Path)

	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return nil, fmt.Errorf("could not create log file for %q: %w", name, err)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("could not start %q: %w", name, err)
	}
	return out, nil
}

// reap waits for cmd, killing it if the bench is being stopped. An
// exit forced by stop is not an error.
func reap(cmd *exec.Cmd, out *os.File, kill <-chan struct{}) error {
	name := filepath.Base(cmd.Path)
	defer out.Close()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-kill:
		_ = cmd.Process.Kill()
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%q exited: %w", name, err)
		}
		return nil
	}
}

// monitor attaches a pmon sampler to cmd and returns a function
// stopping it.
func monitor(cmd *exec.Cmd, dir string, freq time.Duration) (func(), error) {
	name := filepath.Base(cmd.Path)

	p, err := pmon.Monitor(cmd.Process.Pid)
	if err != nil {
		return nil, fmt.Errorf("could not monitor %q (pid=%d): %w", name, cmd.Process.Pid, err)
	}

	f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file for %q: %w", name, err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("pmon %q stopped: %+v", name, err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop pmon %q: %+v", name, err)
		}
		_ = f.Close()
	}, nil
}
