package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/amrbekhit/ftsboot"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var commands = map[string]func(device, []string){
	"handshake": processHandshake,
	"chipid":    processChipID,
	"startapp":  processStartApp,
	"ecc":       processECC,
	"points":    processPoints,
}

const appVersion = "0.1.0"

func main() {
	version := flag.Bool("version", false, "Prints the program version.")
	port := flag.String("spi", "", "SPI port name, e.g. /dev/spidev0.0. Defaults to the first port found.")
	hz := flag.Int64("hz", 10000000, "SPI clock frequency in Hz.")
	mode := flag.Int("mode", 0, "SPI mode.")
	verbose := flag.Bool("v", false, "Enable verbose logging.")

	// Format the default profile in YAML format as an example.
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.Encode(ftsboot.DefaultProfile())
	profileFile := flag.String("profile", "", "Controller profile yaml file. Defaults:\n\n"+buf.String())

	cmdList := []string{}
	for key := range commands {
		cmdList = append(cmdList, key)
	}
	sort.Strings(cmdList)
	command := flag.String("cmd", "", fmt.Sprintf("Command to run, one of: %+v\n"+
		"The ecc command has the following usage: ecc addr length, e.g. ecc 0xD00000 0x1000",
		cmdList))

	flag.Parse()

	if *version {
		fmt.Println(appVersion)
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	ftsboot.SetLogger(log.StandardLogger())

	profile := ftsboot.DefaultProfile()
	if *profileFile != "" {
		f, err := os.Open(*profileFile)
		if err != nil {
			log.Fatalf("failed to open profile file: %v", err)
		}
		profile, err = ftsboot.LoadProfile(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
	}

	var f func(device, []string)
	if *command != "" {
		var ok bool
		if f, ok = commands[*command]; !ok {
			log.Fatalf("invalid command %v", *command)
		}
	} else if len(flag.Args()) != 1 {
		log.Fatalf("must specify firmware file to program")
	}

	bus, err := ftsboot.OpenSPI(*port, physic.Frequency(*hz)*physic.Hertz, spi.Mode(*mode))
	if err != nil {
		log.Fatalf("failed to open bus: %v", err)
	}
	defer bus.Close()

	ch := ftsboot.NewChannel(bus, profile.BufferSize, profile.Retries)
	dev := device{
		ch:         ch,
		bootloader: ftsboot.NewBootloader(ch),
		profile:    profile,
	}

	if f != nil {
		// Run a single command
		f(dev, flag.Args())
		return
	}

	img, err := ftsboot.LoadImageFile(flag.Args()[0], profile)
	if err != nil {
		log.Fatalf("failed to load firmware: %v", err)
	}
	log.Infof("firmware loaded: %d bytes", len(img.Bytes()))

	updater := ftsboot.NewUpdater(dev.bootloader, profile)
	updater.Programmer().SetProgressFunc(func(region string, written, total int) {
		log.Debugf("%s: %d/%d bytes", region, written, total)
	})

	log.Infof("updating...")
	if err := updater.Update(img); err != nil {
		log.Fatal(err)
	}
	log.Infof("complete")
}
