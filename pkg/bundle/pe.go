//
// SPDX-FileCopyrightText: Copyright (c) 2025 provide.io llc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
//

package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Windows subsystem values from the PE optional header.
const (
	SubsystemGUI     uint16 = 2
	SubsystemConsole uint16 = 3
)

// The subsystem field sits at the same offset in PE32 and PE32+ optional headers.
const subsystemFieldOffset = 68

// IsPE reports whether data is a Windows PE executable.
func IsPE(data []byte) bool {
	if len(data) < 2 || data[0] != 'M' || data[1] != 'Z' {
		return false
	}
	_, err := peHeaderOffset(data)
	return err == nil
}

// peHeaderOffset reads e_lfanew at 0x3C and checks the PE signature there.
func peHeaderOffset(data []byte) (int, error) {
	if len(data) < 0x40 {
		return 0, fmt.Errorf("data too short to contain DOS header")
	}
	off := int(binary.LittleEndian.Uint32(data[0x3C:0x40]))
	if off < 0 || len(data) < off+4 {
		return 0, fmt.Errorf("data too short to contain PE header at offset 0x%x", off)
	}
	if !bytes.Equal(data[off:off+4], []byte{'P', 'E', 0, 0}) {
		return 0, fmt.Errorf("invalid PE signature at offset 0x%x", off)
	}
	return off, nil
}

func subsystemOffset(data []byte) (int, error) {
	peOff, err := peHeaderOffset(data)
	if err != nil {
		return 0, err
	}
	// COFF header is 20 bytes after the 4-byte signature.
	optOff := peOff + 24
	optSize := int(binary.LittleEndian.Uint16(data[peOff+20 : peOff+22]))
	if optSize < subsystemFieldOffset+2 || len(data) < optOff+subsystemFieldOffset+2 {
		return 0, fmt.Errorf("optional header too short for subsystem field")
	}
	return optOff + subsystemFieldOffset, nil
}

// Subsystem returns the PE subsystem value.
func Subsystem(data []byte) (uint16, error) {
	off, err := subsystemOffset(data)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data[off : off+2]), nil
}

// SetSubsystem patches the PE subsystem in place.
func SetSubsystem(data []byte, subsystem uint16) error {
	off, err := subsystemOffset(data)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(data[off:off+2], subsystem)
	return nil
}

// SubsystemName renders a subsystem value for metadata.
func SubsystemName(subsystem uint16) string {
	switch subsystem {
	case SubsystemGUI:
		return "windows"
	case SubsystemConsole:
		return "console"
	}
	return fmt.Sprintf("0x%x", subsystem)
}
