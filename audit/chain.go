package audit

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	"github.com/xraph/bastion/id"
)

// Hash is a 32-byte BLAKE3 digest linking audit entries.
type Hash [32]byte

// entryDomainKey separates audit hashes from any other BLAKE3 use. Changing
// it invalidates every existing chain.
var entryDomainKey = [32]byte{
	'b', 'a', 's', 't', 'i', 'o', 'n', '.', 'a', 'u', 'd', 'i', 't', '.',
	'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// TimePrecision is the resolution timestamps are truncated to before
// sealing, so entries verify after a round trip through any backend.
const TimePrecision = time.Millisecond

// String returns the hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the genesis hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string. The empty string is the
// genesis hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if s == "" {
		return h, nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("audit: parse hash: %w", err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("audit: hash is %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return h, nil
}

// Head is the tip of the chain: the last sequence number, hash and
// timestamp appended.
type Head struct {
	Seq  int64
	Hash Hash
	At   time.Time
}

// Next seals e as the entry following h and returns the new head. It
// assigns ID (if nil), Seq, CreatedAt, PrevHash and Hash. CreatedAt never
// goes backwards relative to the head, so timestamp order is append order.
func (h Head) Next(e *Entry, now time.Time) Head {
	if e.ID.IsNil() {
		e.ID = id.NewAuditEntryID()
	}
	at := now.UTC().Truncate(TimePrecision)
	if at.Before(h.At) {
		at = h.At
	}
	e.Seq = h.Seq + 1
	e.CreatedAt = at
	e.PrevHash = h.Hash
	e.Hash = e.ComputeHash()
	return Head{Seq: e.Seq, Hash: e.Hash, At: at}
}

// ComputeHash returns the keyed hash of e's canonical encoding, which
// covers every field except Hash itself.
func (e *Entry) ComputeHash() Hash {
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("audit: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	w := canonicalWriter{buf: make([]byte, 0, 256)}
	w.bytes(e.PrevHash[:])
	w.int(e.Seq)
	w.str(e.ID.String())
	w.str(e.ActorID)
	w.str(e.TargetID)
	w.str(e.Action)
	w.str(string(e.Permission))
	w.str(string(e.Outcome))
	w.str(e.Reason)
	w.str(string(e.OldRole))
	w.str(string(e.NewRole))
	w.str(string(e.OldStatus))
	w.str(string(e.NewStatus))
	w.str(e.Source)
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.int(int64(len(keys)))
	for _, k := range keys {
		w.str(k)
		w.str(e.Metadata[k])
	}
	w.int(e.CreatedAt.UTC().Truncate(TimePrecision).UnixNano())

	_, _ = hasher.Write(w.buf)
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// Verify walks entries in sequence order and checks each entry's hash and
// its link to the previous entry. The first entry's PrevHash is trusted as
// the anchor, which is what remains after a purge. It returns the number of
// entries verified.
func Verify(entries iter.Seq2[*Entry, error]) (int64, error) {
	var (
		prev *Entry
		n    int64
	)
	for e, err := range entries {
		if err != nil {
			return n, err
		}
		if e.ComputeHash() != e.Hash {
			return n, fmt.Errorf("%w: entry %d (%s) hash mismatch", ErrChainBroken, e.Seq, e.ID)
		}
		if prev != nil {
			if e.Seq != prev.Seq+1 {
				return n, fmt.Errorf("%w: gap between seq %d and %d", ErrChainBroken, prev.Seq, e.Seq)
			}
			if e.PrevHash != prev.Hash {
				return n, fmt.Errorf("%w: entry %d does not link to %d", ErrChainBroken, e.Seq, prev.Seq)
			}
		}
		prev = e
		n++
	}
	return n, nil
}

// canonicalWriter length-prefixes every field so that no two distinct
// entries share an encoding.
type canonicalWriter struct {
	buf []byte
}

func (w *canonicalWriter) int(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *canonicalWriter) str(s string) {
	w.int(int64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *canonicalWriter) bytes(b []byte) {
	w.int(int64(len(b)))
	w.buf = append(w.buf, b...)
}
