//go:build linux

package linux

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	uinputDevicePath = "/dev/uinput"
	uinputBusTypeUSB = 0x03
	uinputVendorID   = 0x1234
	uinputProductID  = 0x5679
	uinputMaxName    = 80

	// Linux input event types
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03
	evMsc = 0x04
	evSw  = 0x05
	evLed = 0x11

	synReport  = 0x00
	synDropped = 0x03

	relX = 0x00
	relY = 0x01

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112

	btnToolFinger    = 0x145
	btnToolQuinttap  = 0x148
	btnToolDoubletap = 0x14d
	btnToolTripletap = 0x14e
	btnToolQuadtap   = 0x14f
	keyMax           = 0x2ff

	absMTSlot       = 0x2f
	absMTPositionX  = 0x35
	absMTPositionY  = 0x36
	absMTTrackingID = 0x39

	inputPropCnt = 0x20
)

type inputID struct {
	bustype uint16
	vendor  uint16
	product uint16
	version uint16
}

type uinputSetup struct {
	id           inputID
	name         [uinputMaxName]byte
	ffEffectsMax uint32
}

type uinputAbsSetup struct {
	code    uint16
	_       uint16
	absinfo AbsInfo
}

type inputEvent struct {
	time  unix.Timeval
	etype uint16
	code  uint16
	value int32
}

// uinput ioctls.
var (
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
	uiDevSetup   = ioc(iocWrite, 'U', 3, uint32(unsafe.Sizeof(uinputSetup{})))
	uiAbsSetup   = ioc(iocWrite, 'U', 4, uint32(unsafe.Sizeof(uinputAbsSetup{})))
	uiSetEvbit   = ioc(iocWrite, 'U', 100, 4)
	uiSetKeybit  = ioc(iocWrite, 'U', 101, 4)
	uiSetRelbit  = ioc(iocWrite, 'U', 102, 4)
	uiSetAbsbit  = ioc(iocWrite, 'U', 103, 4)
	uiSetMscbit  = ioc(iocWrite, 'U', 104, 4)
	uiSetLedbit  = ioc(iocWrite, 'U', 105, 4)
	uiSetSwbit   = ioc(iocWrite, 'U', 109, 4)
	uiSetPropbit = ioc(iocWrite, 'U', 110, 4)
)

// DeviceSpec lists the capabilities of a virtual input device.
type DeviceSpec struct {
	Name     string
	Keys     []uint16
	Rels     []uint16
	Msc      []uint16
	Switches []uint16
	Leds     []uint16
	Abs      map[uint16]AbsInfo
	Props    []uint16
}

// PointerSpec is a plain three-button relative pointer.
func PointerSpec(name string) DeviceSpec {
	return DeviceSpec{
		Name: name,
		Keys: []uint16{btnLeft, btnRight, btnMiddle},
		Rels: []uint16{relX, relY},
	}
}

// VirtualDevice is a kernel input device created through uinput.
type VirtualDevice struct {
	mu   sync.Mutex
	file *os.File
	fd   uintptr
	name string
}

// NewVirtualDevice creates a uinput device with the capabilities in spec.
func NewVirtualDevice(spec DeviceSpec) (*VirtualDevice, error) {
	f, err := os.OpenFile(uinputDevicePath, os.O_WRONLY|unix.O_NONBLOCK, 0o660)
	if err != nil {
		return nil, fmt.Errorf("failed to open uinput device: %w", err)
	}
	v := &VirtualDevice{file: f, fd: f.Fd(), name: spec.Name}

	if err := v.enable(spec); err != nil {
		v.closeFile()
		return nil, fmt.Errorf("failed to configure %s: %w", spec.Name, err)
	}
	if err := v.create(spec); err != nil {
		v.closeFile()
		return nil, fmt.Errorf("failed to create %s: %w", spec.Name, err)
	}
	return v, nil
}

func (v *VirtualDevice) ioctl(req uintptr, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, v.fd, req, arg); errno != 0 {
		return errno
	}
	return nil
}

func (v *VirtualDevice) setBits(evType uint16, req uintptr, codes []uint16) error {
	if len(codes) == 0 {
		return nil
	}
	if err := v.ioctl(uiSetEvbit, uintptr(evType)); err != nil {
		return fmt.Errorf("event type %#x: %w", evType, err)
	}
	for _, code := range codes {
		if err := v.ioctl(req, uintptr(code)); err != nil {
			return fmt.Errorf("event type %#x code %#x: %w", evType, code, err)
		}
	}
	return nil
}

func (v *VirtualDevice) enable(spec DeviceSpec) error {
	absCodes := make([]uint16, 0, len(spec.Abs))
	for code := range spec.Abs {
		absCodes = append(absCodes, code)
	}
	sort.Slice(absCodes, func(i, j int) bool { return absCodes[i] < absCodes[j] })

	steps := []struct {
		evType uint16
		req    uintptr
		codes  []uint16
	}{
		{evKey, uiSetKeybit, spec.Keys},
		{evRel, uiSetRelbit, spec.Rels},
		{evAbs, uiSetAbsbit, absCodes},
		{evMsc, uiSetMscbit, spec.Msc},
		{evSw, uiSetSwbit, spec.Switches},
		{evLed, uiSetLedbit, spec.Leds},
	}
	for _, s := range steps {
		if err := v.setBits(s.evType, s.req, s.codes); err != nil {
			return err
		}
	}
	for _, prop := range spec.Props {
		if err := v.ioctl(uiSetPropbit, uintptr(prop)); err != nil {
			return fmt.Errorf("property %#x: %w", prop, err)
		}
	}
	for _, code := range absCodes {
		setup := uinputAbsSetup{code: code, absinfo: spec.Abs[code]}
		if err := v.ioctl(uiAbsSetup, uintptr(unsafe.Pointer(&setup))); err != nil {
			return fmt.Errorf("abs axis %#x: %w", code, err)
		}
	}
	return nil
}

func (v *VirtualDevice) create(spec DeviceSpec) error {
	var setup uinputSetup
	copy(setup.name[:uinputMaxName-1], spec.Name)
	setup.id = inputID{
		bustype: uinputBusTypeUSB,
		vendor:  uinputVendorID,
		product: uinputProductID,
		version: 1,
	}
	if err := v.ioctl(uiDevSetup, uintptr(unsafe.Pointer(&setup))); err != nil {
		return err
	}
	return v.ioctl(uiDevCreate, 0)
}

// Name returns the device name given at creation.
func (v *VirtualDevice) Name() string {
	return v.name
}

// Emit writes one event. Callers group events and finish with Sync.
func (v *VirtualDevice) Emit(etype, code uint16, value int32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writeLocked(etype, code, value)
}

func (v *VirtualDevice) writeLocked(etype, code uint16, value int32) error {
	if v.file == nil {
		return os.ErrClosed
	}
	ev := inputEvent{etype: etype, code: code, value: value}
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	if _, err := unix.Write(int(v.fd), buf); err != nil {
		return err
	}
	return nil
}

// Sync writes a SYN_REPORT.
func (v *VirtualDevice) Sync() error {
	return v.Emit(evSyn, synReport, 0)
}

// EmitKey writes a key transition followed by SYN_REPORT.
func (v *VirtualDevice) EmitKey(code uint16, pressed bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var value int32
	if pressed {
		value = 1
	}
	if err := v.writeLocked(evKey, code, value); err != nil {
		return err
	}
	return v.writeLocked(evSyn, synReport, 0)
}

// Close destroys the device.
func (v *VirtualDevice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.file == nil {
		return nil
	}
	destroyErr := v.ioctl(uiDevDestroy, 0)
	return errors.Join(destroyErr, v.closeFile())
}

func (v *VirtualDevice) closeFile() error {
	if v.file == nil {
		return nil
	}
	err := v.file.Close()
	v.file = nil
	v.fd = 0
	return err
}
