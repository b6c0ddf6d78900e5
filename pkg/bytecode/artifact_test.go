package bytecode

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTestChunk(t *testing.T) *Chunk {
	t.Helper()
	chunk, err := CompileSource("greeting = hello\necho $greeting\n")
	require.NoError(t, err)
	return chunk
}

func testManifest() Manifest {
	return Manifest{Name: "greet.luw", Entry: "main", Tool: "luw/1"}
}

func formatKind(t *testing.T, err error) FormatErrorKind {
	t.Helper()
	var fe *FormatError
	require.True(t, errors.As(err, &fe), "error %v is not a *FormatError", err)
	return fe.Kind
}

func TestArtifactRoundtrip(t *testing.T) {
	chunk := buildTestChunk(t)
	data, err := EncodeArtifact(chunk, testManifest())
	require.NoError(t, err)

	decoded, manifest, err := DecodeArtifact(data)
	require.NoError(t, err)
	require.Equal(t, chunk.Code, decoded.Code)
	require.Equal(t, chunk.Constants, decoded.Constants)
	require.Equal(t, "greet.luw", manifest.Name)
	require.Equal(t, "main", manifest.Entry)
	require.Equal(t, "luw/1", manifest.Tool)
}

func TestArtifactDeterministic(t *testing.T) {
	// Same source, same manifest: byte-identical artifacts.
	first, err := EncodeArtifact(buildTestChunk(t), testManifest())
	require.NoError(t, err)
	second, err := EncodeArtifact(buildTestChunk(t), testManifest())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestArtifactBadMagic(t *testing.T) {
	data, err := EncodeArtifact(buildTestChunk(t), testManifest())
	require.NoError(t, err)
	copy(data, "NOPE")

	_, _, err = DecodeArtifact(data)
	require.Equal(t, ErrBadMagic, formatKind(t, err))
}

func TestArtifactUnsupportedVersion(t *testing.T) {
	data, err := EncodeArtifact(buildTestChunk(t), testManifest())
	require.NoError(t, err)
	binary.BigEndian.PutUint16(data[4:], FormatVersion+1)

	_, _, err = DecodeArtifact(data)
	require.Equal(t, ErrUnsupportedVersion, formatKind(t, err))
}

func TestArtifactTruncated(t *testing.T) {
	data, err := EncodeArtifact(buildTestChunk(t), testManifest())
	require.NoError(t, err)

	_, _, err = DecodeArtifact(data[:6])
	require.Equal(t, ErrTruncated, formatKind(t, err))
}

func TestArtifactChecksumMismatch(t *testing.T) {
	data, err := EncodeArtifact(buildTestChunk(t), testManifest())
	require.NoError(t, err)
	data[len(data)-10] ^= 0xFF // Corrupt the payload

	_, _, err = DecodeArtifact(data)
	require.Equal(t, ErrChecksum, formatKind(t, err))
}

func TestArtifactInvalidProgram(t *testing.T) {
	// A chunk that fails validation never encodes.
	bad := NewChunk()
	bad.EmitWithOperand(OpConst, 0x00, 0x09) // Empty pool
	bad.Emit(OpHalt)

	_, err := EncodeArtifact(bad, testManifest())
	require.Equal(t, ErrInvalidProgram, formatKind(t, err))
}

func TestArtifactEmptyInput(t *testing.T) {
	_, _, err := DecodeArtifact(nil)
	require.Equal(t, ErrTruncated, formatKind(t, err))
}
