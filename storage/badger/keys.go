package badger

import "encoding/binary"

// Key prefixes for the place store. Primary records are keyed by a monotonic
// sequence number so prefix iteration yields creation order; the other
// prefixes are lookup indices pointing back at it.
const (
	placeRecordPrefix  = "plc:"     // + 8-byte BE sequence -> Place
	placeIDPrefix      = "plcid:"   // + place id -> 8-byte BE sequence
	placeOsmPrefix     = "plcosm:"  // + osm id -> place id
	placePendingPrefix = "plcpend:" // + place id -> 8-byte BE sequence
	placeIDSeq         = "plcseq"
)

// makePlaceRecordKey generates the primary key for a place by sequence number.
func makePlaceRecordKey(seq uint64) []byte {
	prefix := []byte(placeRecordPrefix)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// BigEndian so lexicographic iteration follows creation order
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makePlaceIDKey generates the id index key for a place.
func makePlaceIDKey(id string) []byte {
	return append([]byte(placeIDPrefix), id...)
}

// makePlaceOsmKey generates the OSM-id uniqueness index key.
func makePlaceOsmKey(osmID string) []byte {
	return append([]byte(placeOsmPrefix), osmID...)
}

// makePlacePendingKey generates the pending-sync marker key for a place.
func makePlacePendingKey(id string) []byte {
	return append([]byte(placePendingPrefix), id...)
}

// marshalSeq encodes a sequence number for index values.
func marshalSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// unmarshalSeq decodes a sequence number from an index value.
func unmarshalSeq(data []byte) (uint64, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}
