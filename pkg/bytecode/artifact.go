package bytecode

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
)

// Artifact container layout (.le files):
//
//	[magic:4 "LUWC"] [version:2] [flags:2]
//	[manifest_len:4] [manifest: canonical CBOR]
//	[payload_len:4]  [payload: snappy(chunk bytes)]
//	[checksum:4 crc32c over everything preceding it]

const (
	// ArtifactMagic identifies a compiled artifact file.
	ArtifactMagic = "LUWC"

	// FormatVersion is the current artifact format version. Readers
	// reject anything newer.
	FormatVersion uint16 = 1

	artifactHeaderLen = 4 + 2 + 2
)

// FormatErrorKind classifies artifact decode failures.
type FormatErrorKind int

const (
	ErrBadMagic FormatErrorKind = iota
	ErrUnsupportedVersion
	ErrTruncated
	ErrChecksum
	ErrInvalidProgram
)

func (k FormatErrorKind) String() string {
	switch k {
	case ErrBadMagic:
		return "bad magic"
	case ErrUnsupportedVersion:
		return "unsupported version"
	case ErrTruncated:
		return "truncated"
	case ErrChecksum:
		return "checksum mismatch"
	case ErrInvalidProgram:
		return "invalid program"
	default:
		return "unknown"
	}
}

// FormatError is returned for any malformed or unsupported artifact.
type FormatError struct {
	Kind   FormatErrorKind
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("artifact format error: %s", e.Kind)
	}
	return fmt.Sprintf("artifact format error: %s: %s", e.Kind, e.Detail)
}

func formatErrorf(kind FormatErrorKind, format string, args ...interface{}) *FormatError {
	return &FormatError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Manifest carries artifact metadata. It deliberately excludes
// anything time- or host-dependent: recompiling the same source must
// produce byte-identical artifacts.
type Manifest struct {
	Name  string `cbor:"name"`  // script name, usually the source file base name
	Entry string `cbor:"entry"` // entry point label, "main" for scripts
	Tool  string `cbor:"tool"`  // producing tool identifier, e.g. "luw/1"
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// EncodeArtifact serializes the chunk into a complete artifact file
// image. The chunk is validated first so no malformed program is ever
// written out.
func EncodeArtifact(chunk *Chunk, manifest Manifest) ([]byte, error) {
	if err := chunk.Validate(); err != nil {
		return nil, formatErrorf(ErrInvalidProgram, "%v", err)
	}

	chunkBytes, err := chunk.Serialize()
	if err != nil {
		return nil, err
	}
	payload := snappy.Encode(nil, chunkBytes)

	manifestBytes, err := cborEncMode.Marshal(&manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	buf := make([]byte, 0, artifactHeaderLen+8+len(manifestBytes)+len(payload)+4)
	buf = append(buf, ArtifactMagic...)
	buf = binary.BigEndian.AppendUint16(buf, FormatVersion)
	buf = binary.BigEndian.AppendUint16(buf, 0) // Flags, reserved
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(manifestBytes)))
	buf = append(buf, manifestBytes...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.Checksum(buf, crcTable))

	return buf, nil
}

// DecodeArtifact parses and verifies an artifact file image, returning
// the chunk and its manifest. Every failure mode maps to a FormatError
// kind so callers can report precisely what was wrong.
func DecodeArtifact(data []byte) (*Chunk, *Manifest, error) {
	if len(data) < artifactHeaderLen {
		return nil, nil, formatErrorf(ErrTruncated, "file is %d bytes, header needs %d", len(data), artifactHeaderLen)
	}
	if string(data[:4]) != ArtifactMagic {
		return nil, nil, formatErrorf(ErrBadMagic, "got %q", data[:4])
	}
	version := binary.BigEndian.Uint16(data[4:])
	if version == 0 || version > FormatVersion {
		return nil, nil, formatErrorf(ErrUnsupportedVersion, "version %d, reader supports up to %d", version, FormatVersion)
	}

	// Checksum covers everything before the trailing 4 bytes.
	if len(data) < artifactHeaderLen+4+4+4 {
		return nil, nil, formatErrorf(ErrTruncated, "file is %d bytes", len(data))
	}
	body := data[:len(data)-4]
	want := binary.BigEndian.Uint32(data[len(data)-4:])
	if got := crc32.Checksum(body, crcTable); got != want {
		return nil, nil, formatErrorf(ErrChecksum, "computed %08x, stored %08x", got, want)
	}

	pos := artifactHeaderLen
	manifestLen := binary.BigEndian.Uint32(body[pos:])
	pos += 4
	if pos+int(manifestLen) > len(body) {
		return nil, nil, formatErrorf(ErrTruncated, "manifest length %d exceeds file", manifestLen)
	}
	var manifest Manifest
	if err := cbor.Unmarshal(body[pos:pos+int(manifestLen)], &manifest); err != nil {
		return nil, nil, formatErrorf(ErrInvalidProgram, "decode manifest: %v", err)
	}
	pos += int(manifestLen)

	if pos+4 > len(body) {
		return nil, nil, formatErrorf(ErrTruncated, "missing payload length")
	}
	payloadLen := binary.BigEndian.Uint32(body[pos:])
	pos += 4
	if pos+int(payloadLen) != len(body) {
		return nil, nil, formatErrorf(ErrTruncated, "payload length %d does not match file", payloadLen)
	}

	chunkBytes, err := snappy.Decode(nil, body[pos:])
	if err != nil {
		return nil, nil, formatErrorf(ErrInvalidProgram, "decompress payload: %v", err)
	}
	chunk, err := Deserialize(chunkBytes)
	if err != nil {
		return nil, nil, formatErrorf(ErrInvalidProgram, "%v", err)
	}
	if err := chunk.Validate(); err != nil {
		return nil, nil, formatErrorf(ErrInvalidProgram, "%v", err)
	}

	return chunk, &manifest, nil
}
