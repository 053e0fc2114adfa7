/*
Package merkledb implements a merklized document store on top of an ordered
key-value engine (Bolt, Badger, LevelDB or memory).

We implement:

1. Typed indexes: Entry, List, Map and Set, plus the Merkle-backed
ProofEntry, ProofList and ProofMap, and groups of same-typed indexes told
apart by an id.

2. Proofs of inclusion and absence for ProofList and ProofMap contents.

3. A single state hash committing to every Merkle-backed index.

4. Snapshots for reads, Forks for buffered writes, and atomic merges.

5. Capability-restricted views and online migrations of a namespace.

# Technical Details

**Namespaces.**
Storage keys live in three engine namespaces: __meta__ (index metadata),
__data__ (index contents) and __system__ (counters, garbage list, migration
descriptors). Bolt keeps them in buckets; flat engines prefix every key with
uvarint(len(ns)) ‖ ns.

**Index identifiers.**
Every index gets a unique positive identifier on its first write. Its keys
are stored under the 8-byte big-endian identifier, so index key ranges never
overlap. Identifiers are never reused, even when an index is removed.

**Metadata** records the identifier, the index type and a small type-specific
state (the length of a list), msgpack-encoded.

## Merkle rules

Every hashed preimage starts with a domain tag: 0x00 blob, 0x01 list
branch, 0x02 list object, 0x03 map object, 0x04 map branch, 0x05
single-entry map root.

**ProofList**: leaves are blob hashes of the values, branches hash
0x01 ‖ left ‖ right, and a node without a sibling is promoted unchanged. The
object hash is H(0x02 ‖ u64le(length) ‖ root), with ZeroHash as the root of
an empty list.

**ProofMap**: keys are hashed to 256-bit paths, most significant bit first.
Branches hash 0x04 ‖ left ‖ right ‖ enc(leftPath) ‖ enc(rightPath), where
enc(path) is u16be(bit length) followed by 32 bytes of bits. A lone leaf at
the root hashes as H(0x05 ‖ enc(path) ‖ leaf). The object hash is
H(0x03 ‖ root).

**State hash**: the object hash of the reserved ProofMap
__state_aggregator__, keyed by index name. A group contributes one entry: the
object hash of a ProofMap from member id to member hash.
*/
package merkledb
