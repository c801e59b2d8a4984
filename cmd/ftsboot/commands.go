package main

import (
	"fmt"
	"strconv"

	"github.com/amrbekhit/ftsboot"
	log "github.com/sirupsen/logrus"
)

// device bundles what the single commands operate on.
type device struct {
	ch         *ftsboot.Channel
	bootloader ftsboot.Bootloader
	profile    ftsboot.Profile
}

func processHandshake(dev device, args []string) {
	if err := dev.bootloader.Handshake(); err != nil {
		log.Fatalf("handshake failed: %v", err)
	}
}

func processChipID(dev device, args []string) {
	id, err := dev.bootloader.ReadChipID()
	if err != nil {
		log.Fatalf("failed to read chip id: %v", err)
	}
	fmt.Printf("chip id: %04X\n", id)
}

func processStartApp(dev device, args []string) {
	if err := dev.bootloader.StartApp(); err != nil {
		log.Fatalf("failed to start app: %v", err)
	}
}

func getAddrAndLen(args []string) (uint32, uint32) {
	if len(args) != 2 {
		log.Fatalf("expected: addr len")
	}
	addr, err := strconv.ParseUint(args[0], 0, 24)
	if err != nil {
		log.Fatalf("invalid address: %v", err)
	}
	len, err := strconv.ParseUint(args[1], 0, 24)
	if err != nil {
		log.Fatalf("invalid length: %v", err)
	}
	return uint32(addr), uint32(len)
}

func processECC(dev device, args []string) {
	addr, len := getAddrAndLen(args)
	verifier := ftsboot.NewEccVerifier(dev.bootloader, dev.profile)
	ecc, err := verifier.Calculate(ftsboot.EccSpan{Address: addr, Length: len})
	if err != nil {
		log.Fatalf("failed to calculate ecc: %v", err)
	}
	fmt.Printf("ecc: %04X\n", ecc)
}

func processPoints(dev device, args []string) {
	points, err := ftsboot.ReadTouchPoints(dev.ch)
	if err != nil {
		log.Fatalf("failed to read touch points: %v", err)
	}
	for _, p := range points {
		fmt.Printf("id %d: x %d y %d\n", p.ID, p.X, p.Y)
	}
}
