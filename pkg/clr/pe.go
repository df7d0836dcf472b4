package clr

import (
	"bytes"
	"debug/pe"
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

// Index of the CLI header in the PE data directory.
const comDescriptorDirectory = 14

// cor20Header is the fixed prefix of the CLI header (ECMA-335 §II.25.3.3).
type cor20Header struct {
	Cb                  uint32
	MajorRuntimeVersion uint16
	MinorRuntimeVersion uint16
	MetaDataRVA         uint32
	MetaDataSize        uint32
	Flags               uint32
	EntryPointToken     uint32
}

// locateMetadata returns the metadata root embedded in a PE image.
func locateMetadata(data []byte) ([]byte, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, tables.BadImage(err, "failed to parse PE image")
	}
	defer f.Close()

	var dirs []pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, 16)]
	case *pe.OptionalHeader64:
		dirs = oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, 16)]
	default:
		return nil, tables.BadImage(errors.New("no optional header"), "failed to parse PE image")
	}
	if len(dirs) <= comDescriptorDirectory || dirs[comDescriptorDirectory].VirtualAddress == 0 {
		return nil, tables.BadImage(errors.New("no CLI header"), "not a managed image")
	}

	dir := dirs[comDescriptorDirectory]
	raw, err := sliceRVA(f, data, dir.VirtualAddress, dir.Size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CLI header")
	}
	var hdr cor20Header
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
		return nil, tables.BadImage(err, "failed to read CLI header")
	}
	md, err := sliceRVA(f, data, hdr.MetaDataRVA, hdr.MetaDataSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata")
	}
	return md, nil
}

// sliceRVA maps an RVA range to the file bytes of the section holding it.
func sliceRVA(f *pe.File, data []byte, rva, size uint32) ([]byte, error) {
	for _, s := range f.Sections {
		extent := max(s.VirtualSize, s.Size)
		if rva < s.VirtualAddress || uint64(rva)+uint64(size) > uint64(s.VirtualAddress)+uint64(extent) {
			continue
		}
		off := uint64(s.Offset) + uint64(rva-s.VirtualAddress)
		end := off + uint64(size)
		if end > uint64(len(data)) || end > uint64(s.Offset)+uint64(s.Size) {
			return nil, tables.BadImage(errors.Newf("RVA 0x%X+%d beyond section %s", rva, size, s.Name),
				"mapping RVA")
		}
		return data[off:end], nil
	}
	return nil, tables.BadImage(errors.Newf("RVA 0x%X in no section", rva), "mapping RVA")
}
