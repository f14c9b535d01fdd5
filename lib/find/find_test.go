package find

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanACM(t *testing.T) {
	dev := t.TempDir()
	for _, n := range []string{"ttyACM0", "ttyACM2", "ttyUSB0", "ttyACM12"} {
		require.NoError(t, os.WriteFile(filepath.Join(dev, n), nil, 0o600))
	}
	require.Equal(t, []string{"ttyACM0", "ttyACM2"}, ScanACM(dev, 10))
	require.Equal(t, []string{"ttyACM0"}, ScanACM(dev, 1))
	require.Empty(t, ScanACM(t.TempDir(), 10))
}

func TestDiscoverACM(t *testing.T) {
	dev := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dev, "ttyACM1"), nil, 0o600))

	paths, err := Discover(MethodACM, dev, 10)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dev, "ttyACM1")}, paths)

	_, err = Discover("bogus", dev, 10)
	require.Error(t, err)
}

// fakeSysfs builds a minimal /sys layout with one USB tty and one platform
// tty and returns the class/tty directory.
func fakeSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	class := filepath.Join(root, "class", "tty")
	require.NoError(t, os.MkdirAll(class, 0o755))
	addUsbTty(t, class, "1-1", "ttyACM0", "00123")

	platTTY := filepath.Join(root, "devices", "platform", "serial8250", "tty", "ttyS0")
	require.NoError(t, os.MkdirAll(platTTY, 0o755))
	require.NoError(t, os.Symlink(platTTY, filepath.Join(class, "ttyS0")))
	require.NoError(t, os.WriteFile(filepath.Join(class, "README"), nil, 0o644))
	return class
}

// addUsbTty creates a CAEN usb device at port with one tty interface and
// links it into the class directory.
func addUsbTty(t *testing.T, class, port, tty, serial string) {
	t.Helper()
	root := filepath.Dir(filepath.Dir(class))
	usbDev := filepath.Join(root, "devices", "usb1", port)
	iface := filepath.Join(usbDev, port+":1.0")
	ttyDir := filepath.Join(iface, "tty", tty)
	require.NoError(t, os.MkdirAll(ttyDir, 0o755))
	require.NoError(t, os.Symlink(iface, filepath.Join(ttyDir, "device")))
	for name, val := range map[string]string{
		"idVendor":     "21e1\n",
		"idProduct":    "0018\n",
		"manufacturer": "CAEN\n",
		"product":      "DT5533EN\n",
		"serial":       serial + "\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(usbDev, name), []byte(val), 0o644))
	}
	require.NoError(t, os.Symlink(ttyDir, filepath.Join(class, tty)))
}

func TestAllUsbTtysIn(t *testing.T) {
	ttys, err := AllUsbTtysIn(fakeSysfs(t))
	require.NoError(t, err)
	require.Len(t, ttys, 1)

	ut := ttys[0]
	require.Equal(t, "ttyACM0", ut.Dev)
	require.Equal(t, "21e1", ut.IDv)
	require.Equal(t, "0018", ut.IDp)
	require.Equal(t, "CAEN", ut.Mfg)
	require.Equal(t, "DT5533EN", ut.Prod)
	require.Equal(t, "00123", ut.Serial)
	require.Contains(t, ttys.String(), "serial 00123")
}

func TestFilters(t *testing.T) {
	caen := Usbtty{IDv: "21E1"}
	require.True(t, CAENFilter(&caen))
	byName := Usbtty{Mfg: "Caen S.p.A."}
	require.True(t, CAENFilter(&byName))
	other := Usbtty{IDv: "2341", Mfg: "Arduino (www.arduino.cc)", Serial: "A603UX94"}
	require.False(t, CAENFilter(&other))
	require.True(t, SerialFilter("A603UX94")(&other))
	require.False(t, SerialFilter("nope")(&other))
}

func TestFindIn(t *testing.T) {
	class := fakeSysfs(t)

	dev, err := FindIn(class, nil)
	require.NoError(t, err)
	require.Equal(t, "ttyACM0", dev)

	addUsbTty(t, class, "1-2", "ttyACM1", "00456")

	dev, err = FindIn(class, SerialFilter("00456"))
	require.NoError(t, err)
	require.Equal(t, "ttyACM1", dev)

	_, err = FindIn(class, SerialFilter("99999"))
	require.ErrorContains(t, err, "no matching ttys")

	_, err = FindIn(class, nil)
	require.ErrorContains(t, err, "multiple ttys")

	dev, err = FindIn(class, CAENFilter)
	require.NoError(t, err)
	require.Contains(t, []string{"ttyACM0", "ttyACM1"}, dev)
}
