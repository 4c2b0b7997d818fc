package hostio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"culvert.dev/culvert/internal/culverr"
)

// OpenDevMem opens /dev/mem for mapping arbitrary physical addresses, the
// devmem bridge's only privileged resource.
func OpenDevMem() (*os.File, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("hostio: open /dev/mem: %w", culverr.PermissionDenied)
		}
		return nil, fmt.Errorf("hostio: open /dev/mem: %w", err)
	}
	return f, nil
}

// PCIDevice identifies one /sys/bus/pci/devices entry.
type PCIDevice struct {
	Path    string
	Vendor  uint16
	Device  uint16
	BARSize map[int]int64
}

// FindPCIDevice scans /sys/bus/pci/devices for the first function matching
// vendor:device, the enumeration discipline p2ab needs to locate the BMC's
// VGA (0x1a03:0x2000) or management (0x1a03:0x2402) PCI function.
func FindPCIDevice(vendor, device uint16) (*PCIDevice, error) {
	const root = "/sys/bus/pci/devices"
	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("hostio: read %s: %w", root, culverr.IOFailure)
	}
	for _, ent := range ents {
		path := filepath.Join(root, ent.Name())
		v, errV := readHexFile(filepath.Join(path, "vendor"))
		d, errD := readHexFile(filepath.Join(path, "device"))
		if errV != nil || errD != nil {
			continue
		}
		if uint16(v) != vendor || uint16(d) != device {
			continue
		}
		return &PCIDevice{Path: path, Vendor: vendor, Device: device, BARSize: map[int]int64{}}, nil
	}
	return nil, fmt.Errorf("hostio: no pci device %04x:%04x: %w", vendor, device, culverr.NotSupported)
}

// OpenBAR opens the resource<N> file for a BAR and returns it along with
// its size, so the caller can mmap it.
func (d *PCIDevice) OpenBAR(n int) (*os.File, int64, error) {
	resPath := filepath.Join(d.Path, fmt.Sprintf("resource%d", n))
	fi, err := os.Stat(resPath)
	if err != nil {
		return nil, 0, fmt.Errorf("hostio: stat %s: %w", resPath, culverr.NotSupported)
	}
	f, err := os.OpenFile(resPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, 0, fmt.Errorf("hostio: open %s: %w", resPath, culverr.PermissionDenied)
		}
		return nil, 0, fmt.Errorf("hostio: open %s: %w", resPath, err)
	}
	return f, fi.Size(), nil
}

// Rescan writes to /sys/bus/pci/rescan, used by the discovery pipeline
// after flipping PCIe endpoint-enable bits from iLPC.
func Rescan() error {
	f, err := os.OpenFile("/sys/bus/pci/rescan", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("hostio: open pci rescan: %w", culverr.IOFailure)
	}
	defer f.Close()
	if _, err := f.WriteString("1"); err != nil {
		return fmt.Errorf("hostio: write pci rescan: %w", culverr.IOFailure)
	}
	return nil
}

func readHexFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("hostio: empty %s", path)
	}
	s := strings.TrimSpace(sc.Text())
	s = strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(s, 16, 32)
}
