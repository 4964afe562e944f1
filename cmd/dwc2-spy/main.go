// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dwc2-spy spies the content of the DWC2 core registers.
package main // import "github.com/go-lpc/dwc2/cmd/dwc2-spy"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/dwc2/hcd"
)

func main() {
	log.SetPrefix("dwc2-spy: ")
	log.SetFlags(0)

	devmem := flag.String("dev", "/dev/mem", "device file exposing the DWC2 MMIO window")
	flag.Parse()

	drv, err := hcd.New(*devmem)
	if err != nil {
		log.Fatalf("could not open device: %+v", err)
	}
	defer drv.Close()

	fmt.Printf("------------------------------------------------\n")
	const layout = "2006-01-02 15:04:05 MST"
	fmt.Printf("%v\n", time.Now().Format(layout))

	err = drv.DumpRegisters(os.Stdout)
	if err != nil {
		log.Fatalf("could not dump registers: %+v", err)
	}
}
