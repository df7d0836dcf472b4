package testutil

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// Layout of the image produced by WrapPE.
const (
	peHeaderOffset = 0x80
	textRVA        = 0x2000
	textOffset     = 0x200
	cor20Size      = 72
)

// WrapPE embeds a metadata root in a minimal PE32 image with one .text
// section holding the CLI header followed by the metadata.
func WrapPE(t testing.TB, metadata []byte) []byte {
	t.Helper()
	le := binary.LittleEndian
	text := make([]byte, cor20Size, cor20Size+len(metadata))
	le.PutUint32(text[0:], cor20Size)
	le.PutUint16(text[4:], 2)
	le.PutUint16(text[6:], 5)
	le.PutUint32(text[8:], textRVA+cor20Size)
	le.PutUint32(text[12:], uint32(len(metadata)))
	le.PutUint32(text[16:], 1) // ILONLY
	text = append(text, metadata...)
	rawSize := (len(text) + 0x1FF) &^ 0x1FF

	var buf bytes.Buffer
	dos := make([]byte, peHeaderOffset)
	copy(dos, "MZ")
	le.PutUint32(dos[0x3C:], peHeaderOffset)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE | pe.IMAGE_FILE_DLL,
	}
	oh := pe.OptionalHeader32{
		Magic:                 0x10b,
		SizeOfCode:            uint32(rawSize),
		BaseOfCode:            textRVA,
		ImageBase:             0x400000,
		SectionAlignment:      0x2000,
		FileAlignment:         0x200,
		MajorSubsystemVersion: 4,
		SizeOfImage:           textRVA + uint32((rawSize+0x1FFF)&^0x1FFF),
		SizeOfHeaders:         textOffset,
		Subsystem:             pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		NumberOfRvaAndSizes:   16,
	}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR] = pe.DataDirectory{
		VirtualAddress: textRVA,
		Size:           cor20Size,
	}
	sh := pe.SectionHeader32{
		VirtualSize:      uint32(len(text)),
		VirtualAddress:   textRVA,
		SizeOfRawData:    uint32(rawSize),
		PointerToRawData: textOffset,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
	}
	copy(sh.Name[:], ".text")

	for _, v := range []any{fh, oh, sh} {
		require.NoError(t, binary.Write(&buf, le, v))
	}
	buf.Write(make([]byte, textOffset-buf.Len()))
	buf.Write(text)
	buf.Write(make([]byte, rawSize-len(text)))
	return buf.Bytes()
}

// Compress returns data as a zstd frame.
func Compress(t testing.TB, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}
