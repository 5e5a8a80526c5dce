//go:build linux

package linux

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding (Linux _IOC macro).
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

// AbsInfo mirrors struct input_absinfo.
type AbsInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// evdev ioctls.
func eviocgabs(code uint16) uintptr {
	return ioc(iocRead, 'E', 0x40+uint32(code), uint32(unsafe.Sizeof(AbsInfo{})))
}

func eviocgprop(size uint32) uintptr {
	return ioc(iocRead, 'E', 0x09, size)
}

func eviocgmtslots(size uint32) uintptr {
	return ioc(iocRead, 'E', 0x0a, size)
}

func eviocgkey(size uint32) uintptr {
	return ioc(iocRead, 'E', 0x18, size)
}

// readAbsInfo reads the range of one absolute axis.
func readAbsInfo(fd uintptr, code uint16) (AbsInfo, error) {
	var info AbsInfo
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgabs(code), uintptr(unsafe.Pointer(&info))); errno != 0 {
		return AbsInfo{}, errno
	}
	return info, nil
}

// readProps returns the INPUT_PROP_* bits set on a device.
func readProps(fd uintptr) ([]uint16, error) {
	var bits [(inputPropCnt + 7) / 8]byte
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgprop(uint32(len(bits))), uintptr(unsafe.Pointer(&bits[0]))); errno != 0 {
		return nil, errno
	}
	var props []uint16
	for i := 0; i < inputPropCnt; i++ {
		if bits[i/8]&(1<<(i%8)) != 0 {
			props = append(props, uint16(i))
		}
	}
	return props, nil
}

// readMTSlots returns the value of an ABS_MT_* axis for every slot.
func readMTSlots(fd uintptr, code uint16, slots int) ([]int32, error) {
	// struct input_mt_request_layout: the axis code followed by one value per slot.
	buf := make([]int32, slots+1)
	buf[0] = int32(code)
	size := uint32(len(buf)) * uint32(unsafe.Sizeof(buf[0]))
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgmtslots(size), uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		return nil, errno
	}
	return buf[1:], nil
}

// readPressedKeys returns which of codes are currently held down.
func readPressedKeys(fd uintptr, codes []uint16) (map[uint16]bool, error) {
	var bits [keyMax/8 + 1]byte
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgkey(uint32(len(bits))), uintptr(unsafe.Pointer(&bits[0]))); errno != 0 {
		return nil, errno
	}
	pressed := make(map[uint16]bool, len(codes))
	for _, c := range codes {
		if bits[c/8]&(1<<(c%8)) != 0 {
			pressed[c] = true
		}
	}
	return pressed, nil
}

// readMTState reads the slot and finger tool state of a multitouch device,
// as needed after SYN_DROPPED or when a device is first opened.
func readMTState(fd uintptr) (mtSnapshot, error) {
	info, err := readAbsInfo(fd, absMTSlot)
	if err != nil {
		return mtSnapshot{}, fmt.Errorf("slot info: %w", err)
	}
	n := int(info.Max) + 1
	if n <= 0 {
		return mtSnapshot{}, fmt.Errorf("device reports %d slots", n)
	}

	axes := map[uint16][]int32{absMTTrackingID: nil, absMTPositionX: nil, absMTPositionY: nil}
	for code := range axes {
		values, err := readMTSlots(fd, code, n)
		if err != nil {
			return mtSnapshot{}, fmt.Errorf("slot values for axis %#x: %w", code, err)
		}
		axes[code] = values
	}

	tools := make([]uint16, 0, len(fingerTools))
	for code := range fingerTools {
		tools = append(tools, code)
	}
	pressed, err := readPressedKeys(fd, tools)
	if err != nil {
		return mtSnapshot{}, fmt.Errorf("key state: %w", err)
	}

	snap := mtSnapshot{current: info.Value, slots: make([]slot, n), tools: pressed}
	for i := range snap.slots {
		snap.slots[i] = slot{
			trackingID: axes[absMTTrackingID][i],
			x:          axes[absMTPositionX][i],
			y:          axes[absMTPositionY][i],
		}
	}
	return snap, nil
}
