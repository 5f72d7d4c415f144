package vm

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Object file format
// ---------------------------------------------------------------------------

// Object files carry one chunk: a 4-byte magic, a format version byte,
// then the chunk as canonical CBOR. Canonical encoding keeps the output
// byte-stable, so compiling the same program twice yields identical
// files.

var objFileMagic = []byte{0x53, 0x50, 0x4e, 0x43} // "SPNC"

// ObjFileVersion is the current object file format version. Files with
// a different version are rejected rather than guessed at.
const ObjFileVersion = 1

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: cannot build CBOR encoder: %v", err))
	}
	encMode = em
}

// MarshalChunk serializes a chunk into the object file format.
func MarshalChunk(chunk *Chunk) ([]byte, error) {
	body, err := encMode.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("encoding chunk: %w", err)
	}
	out := make([]byte, 0, len(objFileMagic)+1+len(body))
	out = append(out, objFileMagic...)
	out = append(out, ObjFileVersion)
	out = append(out, body...)
	return out, nil
}

// UnmarshalChunk parses an object file produced by MarshalChunk.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	if len(data) < len(objFileMagic)+1 || !bytes.Equal(data[:len(objFileMagic)], objFileMagic) {
		return nil, fmt.Errorf("not an object file (bad magic)")
	}
	if v := data[len(objFileMagic)]; v != ObjFileVersion {
		return nil, fmt.Errorf("unsupported object file version %d (want %d)", v, ObjFileVersion)
	}
	var chunk Chunk
	if err := cbor.Unmarshal(data[len(objFileMagic)+1:], &chunk); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}
	if len(chunk.Protos) == 0 {
		return nil, fmt.Errorf("object file contains no code")
	}
	return &chunk, nil
}
