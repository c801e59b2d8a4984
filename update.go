package ftsboot

import (
	"time"

	"github.com/pkg/errors"
)

// Updater runs the complete firmware update sequence.
type Updater struct {
	bootloader Bootloader
	programmer *Programmer
	profile    Profile
}

// NewUpdater creates an updater driving bootloader with the given profile.
func NewUpdater(bootloader Bootloader, profile Profile) *Updater {
	return &Updater{
		bootloader: bootloader,
		programmer: NewProgrammer(bootloader, profile),
		profile:    profile,
	}
}

// Programmer returns the programmer used for the regions.
func (u *Updater) Programmer() *Programmer {
	return u.programmer
}

// Update loads img into the controller: the bootloader region first, then
// the application region, after which the application is started. Each
// region's header is validated before any of its bytes are sent. Any error
// ends the update and leaves the controller partially programmed.
func (u *Updater) Update(img *Image) error {
	if err := u.bootloader.Handshake(); err != nil {
		pkgLog.Warnf("handshake failed: %v", err)
	}
	u.logChipID("chip id")

	pram, err := img.PramRegion()
	if err != nil {
		return errors.Wrap(err, "invalid pram header")
	}
	if err := u.programmer.Program(pram, img.Source(pram)); err != nil {
		return errors.Wrap(err, "failed to write pram")
	}

	dram, err := img.DramRegion()
	if err != nil {
		return errors.Wrap(err, "invalid dram header")
	}
	if err := u.programmer.Program(dram, img.Source(dram)); err != nil {
		return errors.Wrap(err, "failed to write dram")
	}

	if err := u.bootloader.StartApp(); err != nil {
		return errors.Wrap(err, "failed to start app")
	}
	time.Sleep(u.profile.StartSettle)

	u.logChipID("chip id after load firmware")
	return nil
}

// logChipID reads the chip ID for diagnostics only; failures are logged.
func (u *Updater) logChipID(what string) {
	id, err := u.bootloader.ReadChipID()
	if err != nil {
		pkgLog.Warnf("failed to read %s: %v", what, err)
		return
	}
	pkgLog.Infof("%s: %04X", what, id)
}
