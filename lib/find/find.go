package find

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// CAENVendorID is the USB vendor id of CAEN S.p.A. devices.
const CAENVendorID = "21e1"

// Discovery methods accepted by Discover.
const (
	MethodACM       = "acm"
	MethodSysfs     = "sysfs"
	MethodEnumerate = "enumerate"
)

// FilterFn selects ttys in Find.
type FilterFn func(*Usbtty) bool

func CAENFilter(ut *Usbtty) bool {
	return strings.EqualFold(ut.IDv, CAENVendorID) ||
		strings.Contains(strings.ToUpper(ut.Mfg), "CAEN")
}

func SerialFilter(s string) func(ut *Usbtty) bool {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// ScanACM returns the names of the ttyACM0..ttyACM<max-1> device files
// present in devDir, in index order.
func ScanACM(devDir string, max int) []string {
	var ports []string
	for i := 0; i < max; i++ {
		name := fmt.Sprintf("ttyACM%d", i)
		if _, err := os.Stat(filepath.Join(devDir, name)); err == nil {
			ports = append(ports, name)
		}
	}
	return ports
}

// Discover lists candidate serial device paths using the given method.
// devDir and max are used by the "acm" method; "sysfs" and "enumerate" keep
// only ports that look like CAEN devices.
func Discover(method, devDir string, max int) ([]string, error) {
	var names []string
	switch strings.ToLower(method) {
	case "", MethodACM:
		names = ScanACM(devDir, max)
	case MethodSysfs:
		ttys, err := AllUsbTtys()
		if err != nil {
			return nil, err
		}
		for i := range ttys {
			if CAENFilter(&ttys[i]) {
				names = append(names, ttys[i].Dev)
			}
		}
		sort.Strings(names)
	case MethodEnumerate:
		ports, err := Enumerate(CAENPort)
		if err != nil {
			return nil, err
		}
		// enumerator already reports full paths
		return ports, nil
	default:
		return nil, fmt.Errorf("unknown discovery method %q", method)
	}
	paths := make([]string, 0, len(names))
	for _, n := range names {
		paths = append(paths, filepath.Join(devDir, n))
	}
	return paths, nil
}

// CAENPort matches enumerated USB ports with the CAEN vendor id.
func CAENPort(p *enumerator.PortDetails) bool {
	return p.IsUSB && strings.EqualFold(p.VID, CAENVendorID)
}

// Enumerate lists serial ports known to the operating system. If filter is
// not nil, only ports for which it returns true are kept.
func Enumerate(filter func(*enumerator.PortDetails) bool) ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerating serial ports: %w", err)
	}
	var names []string
	for _, p := range ports {
		if filter != nil && !filter(p) {
			continue
		}
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Find searches for a usb serial device. If filter is not nil,
// it is used to narrow choices down. The first device for which
// it returns true (if any) is chosen.
func Find(filter FilterFn) (string, error) {
	return FindIn("/sys/class/tty", filter)
}

// FindIn is Find with the class directory given explicitly.
func FindIn(sct string, filter FilterFn) (string, error) {
	ttys, err := AllUsbTtysIn(sct)
	if err != nil {
		return "", err
	}
	if filter != nil {
		var match Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				match = Usbttys{ttys[i]}
				break
			}
		}
		ttys = match
	}

	switch len(ttys) {
	case 0:
		return "", fmt.Errorf("no matching ttys found")
	case 1:
		return ttys[0].Dev, nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys finds ttys on usb devices by looking at /sys/class/tty.
func AllUsbTtys() (Usbttys, error) {
	return AllUsbTtysIn("/sys/class/tty")
}

// AllUsbTtysIn is AllUsbTtys with the class directory given explicitly.
func AllUsbTtysIn(sct string) (Usbttys, error) {
	var devs []Usbtty
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			// just in case there's anything in the dir that isn't a symlink
			continue
		}
		// we have a symlink like
		// /sys/class/tty/ttyACM0 ->
		// /sys/devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			log.Printf("error evaluating symlink %s; skipping: %s", path, err)
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			log.Printf("usb but lacking device subdir?! %s %s", abs, err)
			continue
		}
		// device points at the interface, e.g. .../usb1/1-10/1-10:1.0;
		// the descriptor files live one level up
		idP, idV, mfg, prod, serial, err := readUsbInfo(filepath.Dir(dev))
		if err != nil {
			log.Printf("%s: %s", abs, err)
		}
		devs = append(devs, Usbtty{
			Dev:    e.Name(),
			Path:   abs,
			IDp:    idP,
			IDv:    idV,
			Mfg:    mfg,
			Prod:   prod,
			Serial: serial,
		})
	}
	return devs, nil
}

// reads prod and vendor ids, and mfg/product/serial strings
//
// returns last error encountered, ignoring os.ErrNotExist.
// errors do not prevent reading additional files or returning data collected.
func readUsbInfo(dev string) (idp, idv, mfg, prod, serial string, err error) {
	read := func(name string) string {
		b, rerr := os.ReadFile(filepath.Join(dev, name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		return strings.TrimSpace(string(b))
	}
	idp = read("idProduct")
	idv = read("idVendor")
	mfg = read("manufacturer")
	prod = read("product")
	serial = read("serial")
	return idp, idv, mfg, prod, serial, err
}
