//go:build linux

package linux

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Permissions reports whether this process can create virtual devices and
// read physical ones.
type Permissions struct {
	Uinput       bool
	InputDevices bool
	InInputGroup bool
	Problem      string
}

// OK reports whether both uinput and /dev/input are usable.
func (p Permissions) OK() bool {
	return p.Uinput && p.InputDevices
}

const fixInstructions = `Add your user to the 'input' group:
  sudo usermod -aG input $USER
Then log out and log back in for changes to take effect.

uinput must also be writable by that group:
  echo 'KERNEL=="uinput", MODE="0660", GROUP="input", OPTIONS+="static_node=uinput"' | sudo tee /etc/udev/rules.d/99-uinput.rules
  sudo udevadm control --reload-rules
  sudo udevadm trigger
If /dev/uinput is missing, load the module with: sudo modprobe uinput`

// Instructions returns the steps that fix a permission problem.
func Instructions() string {
	return fixInstructions
}

// getInputGroupGID looks up the "input" group GID by parsing /etc/group.
func getInputGroupGID() int {
	file, err := os.Open("/etc/group")
	if err != nil {
		return -1
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ":")
		if len(parts) >= 3 && parts[0] == "input" {
			if gid, err := strconv.Atoi(parts[2]); err == nil {
				return gid
			}
		}
	}
	return -1
}

func inInputGroup() bool {
	inputGID := getInputGroupGID()
	if inputGID == -1 {
		return false
	}
	groups, err := os.Getgroups()
	if err != nil {
		return false
	}
	for _, gid := range groups {
		if gid == inputGID {
			return true
		}
	}
	return false
}

// CheckUinput checks that /dev/uinput exists and is writable.
func CheckUinput() error {
	if _, err := os.Stat(uinputDevicePath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s does not exist, the uinput kernel module may not be loaded", uinputDevicePath)
	}
	if err := unix.Access(uinputDevicePath, unix.W_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", uinputDevicePath, err)
	}
	return nil
}

// CheckInputDevices checks that at least one event node is readable.
func CheckInputDevices() error {
	nodes, err := filepath.Glob(inputGlob)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("no input event devices found")
	}
	for _, node := range nodes {
		if unix.Access(node, unix.R_OK) == nil {
			return nil
		}
	}
	return fmt.Errorf("no readable device under %s", filepath.Dir(inputGlob))
}

// CheckPermissions runs every check and summarizes the first problem.
func CheckPermissions() Permissions {
	p := Permissions{InInputGroup: inInputGroup()}

	uinputErr := CheckUinput()
	p.Uinput = uinputErr == nil
	devicesErr := CheckInputDevices()
	p.InputDevices = devicesErr == nil

	switch {
	case uinputErr != nil:
		p.Problem = uinputErr.Error()
	case devicesErr != nil:
		p.Problem = devicesErr.Error()
	}
	if p.Problem != "" && !p.InInputGroup {
		p.Problem += " (user is not in the 'input' group)"
	}
	return p
}
