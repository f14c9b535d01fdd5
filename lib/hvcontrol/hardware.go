package hvcontrol

import (
	"fmt"
	"io"
	"log"
	"sort"

	"go.uber.org/multierr"

	"github.com/gotmc/caenhv"
)

// Hardware is a Controller backed by real boards, one per serial link.
type Hardware struct {
	devices  []int
	handles  map[int]*caenhv.Board
	links    map[int]io.Closer
	channels map[int]int
	paths    map[int]string
}

// Open connects to a board on every path. Paths that cannot be opened or do
// not answer as a board are logged and skipped. ErrNoDevices is returned when
// nothing answered.
func Open(paths []string, open Opener, opts ...caenhv.BoardOption) (*Hardware, error) {
	if len(paths) == 0 {
		return nil, ErrNoDevices
	}
	log.Printf("Found %d possible CAEN devices.", len(paths))

	h := &Hardware{
		handles:  make(map[int]*caenhv.Board),
		links:    make(map[int]io.Closer),
		channels: make(map[int]int),
		paths:    make(map[int]string),
	}
	var errs error
	for _, path := range paths {
		log.Printf("Connecting to device on %s...", path)
		link, err := open(path)
		if err != nil {
			log.Printf("error opening %s: %s", path, err)
			errs = multierr.Append(errs, err)
			continue
		}
		board, err := caenhv.NewBoard(link, opts...)
		if err != nil {
			log.Printf("no board on %s: %s", path, err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			link.Close()
			continue
		}
		sn := board.Serial()
		if prev, dup := h.paths[sn]; dup {
			log.Printf("serial number %d on %s already connected on %s; skipping", sn, path, prev)
			link.Close()
			continue
		}
		log.Printf("Got handle for device with serial number %d with %d channels: %s", sn, board.Channels(), board)
		h.devices = append(h.devices, sn)
		h.handles[sn] = board
		h.links[sn] = link
		h.channels[sn] = board.Channels()
		h.paths[sn] = path
	}
	if len(h.devices) == 0 {
		return nil, multierr.Append(ErrNoDevices, errs)
	}
	sort.Ints(h.devices)
	return h, nil
}

// DeviceNumbers returns the serial numbers of the connected boards.
func (h *Hardware) DeviceNumbers() []int {
	return append([]int(nil), h.devices...)
}

// ChannelsPerDevice returns the number of channels for a device, or 0 for an
// unknown device.
func (h *Hardware) ChannelsPerDevice(dev int) int {
	return h.channels[dev]
}

// Board returns the handle for a device.
func (h *Hardware) Board(dev int) (*caenhv.Board, error) {
	b, ok := h.handles[dev]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownDevice, dev)
	}
	return b, nil
}

// Path returns the serial device path a board was found on.
func (h *Hardware) Path(dev int) string {
	return h.paths[dev]
}

func (h *Hardware) GetChannelParameter(dev, ch int, p caenhv.Param) (float64, error) {
	b, err := h.Board(dev)
	if err != nil {
		return 0, err
	}
	return b.Get(ch, p)
}

func (h *Hardware) SetChannelParameter(dev, ch int, p caenhv.Param, v float64) error {
	b, err := h.Board(dev)
	if err != nil {
		return err
	}
	if err := b.Put(ch, p, v); err != nil {
		return err
	}
	log.Printf("%s is set to %s for Channel %d on device %d", p, p.Format(v), ch, dev)
	return nil
}

// Close closes every serial link. The registry is empty afterwards.
func (h *Hardware) Close() error {
	var err error
	for _, sn := range h.devices {
		log.Printf("Deinitializing device with serial number %d.", sn)
		err = multierr.Append(err, h.links[sn].Close())
	}
	h.devices = nil
	h.handles = map[int]*caenhv.Board{}
	h.links = map[int]io.Closer{}
	h.channels = map[int]int{}
	h.paths = map[int]string{}
	return err
}
