package durable

import (
	"bytes"
	"encoding/gob"
)

// PersistedVersion is the durable, wire-shape twin of an in-memory
// mvcc.Version: begin/end stamps plus payload. mvcc's recovery pass and
// mvcc.Engine's persist/finalize/rollback steps are the only callers that
// need to see this shape; everything else in the core deals in
// *mvcc.Version.
type PersistedVersion struct {
	Begin uint64
	End   uint64
	Data  []byte
}

// EncodeChain gob-encodes a key's version chain (newest-first, matching the
// in-memory History) for storage in the index bucket. gob is a deliberate,
// justified stdlib choice here: format versioning is explicitly out of
// scope (an incompatible reader must simply refuse to open the file), and
// gob already solves exactly "serialize a Go struct graph for this same process to
// read back later" with no cross-language or schema-evolution requirement
// to justify pulling in a third-party serializer.
func EncodeChain(chain []PersistedVersion) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chain); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeChain reverses EncodeChain.
func DecodeChain(b []byte) ([]PersistedVersion, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var chain []PersistedVersion
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&chain); err != nil {
		return nil, err
	}
	return chain, nil
}
