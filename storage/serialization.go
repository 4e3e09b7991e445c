// Copyright 2026 Geomind Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"time"

	"github.com/geomind/placedex/core"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the stored record types. Written by hand against the
// mus-go primitive serializers; field order is the wire format and must not
// change between releases.

// PlaceMUS serializes core.Place.
var PlaceMUS = placeMUS{}

// VectorRecordMUS serializes core.VectorRecord.
var VectorRecordMUS = vectorRecordMUS{}

// MarshalPlace serializes a Place to bytes.
func MarshalPlace(place *core.Place) []byte {
	buf := make([]byte, PlaceMUS.Size(*place))
	PlaceMUS.Marshal(*place, buf)
	return buf
}

// UnmarshalPlace deserializes a Place from bytes.
func UnmarshalPlace(data []byte) (*core.Place, error) {
	place, _, err := PlaceMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &place, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	buf := make([]byte, VectorRecordMUS.Size(*record))
	VectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	record, _, err := VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// timestamps travel as unix microseconds

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// string maps travel as a varint count followed by key/value pairs

func marshalStringMap(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return n
}

func unmarshalStringMap(bs []byte) (m map[string]string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, fmt.Errorf("negative map length %d", length)
	}
	m = make(map[string]string, length)
	for i := 0; i < length; i++ {
		var k, v string
		var n1 int
		k, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

func sizeStringMap(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return size
}

type placeMUS struct{}

func (placeMUS) Marshal(p core.Place, bs []byte) (n int) {
	n = ord.String.Marshal(p.Id, bs)
	n += ord.String.Marshal(p.OsmID, bs[n:])
	n += ord.String.Marshal(p.OsmType, bs[n:])
	n += ord.String.Marshal(p.Name, bs[n:])
	n += ord.String.Marshal(p.CategoryKey, bs[n:])
	n += ord.String.Marshal(p.CategoryValue, bs[n:])
	n += ord.Bool.Marshal(p.Coordinates != nil, bs[n:])
	if p.Coordinates != nil {
		n += raw.Float64.Marshal(p.Coordinates.Latitude, bs[n:])
		n += raw.Float64.Marshal(p.Coordinates.Longitude, bs[n:])
	}
	n += marshalStringMap(p.Tags, bs[n:])
	n += marshalStringMap(p.Address, bs[n:])
	n += marshalStringMap(p.Source, bs[n:])
	n += ord.Bool.Marshal(p.IsActive, bs[n:])
	n += ord.Bool.Marshal(p.PendingSync, bs[n:])
	n += marshalTime(p.CreatedAt, bs[n:])
	n += marshalTime(p.UpdatedAt, bs[n:])
	return n
}

func (placeMUS) Unmarshal(bs []byte) (p core.Place, n int, err error) {
	var n1 int
	p.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return p, n, err
	}
	p.OsmID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.OsmType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.CategoryKey, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.CategoryValue, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	var hasCoords bool
	hasCoords, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	if hasCoords {
		var lat, lon float64
		lat, n1, err = raw.Float64.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return p, n, err
		}
		lon, n1, err = raw.Float64.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return p, n, err
		}
		p.Coordinates = &core.Coordinates{Latitude: lat, Longitude: lon}
	}
	p.Tags, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.Address, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.Source, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.IsActive, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.PendingSync, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.CreatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return p, n, err
	}
	p.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return p, n, err
}

func (placeMUS) Size(p core.Place) (size int) {
	size = ord.String.Size(p.Id)
	size += ord.String.Size(p.OsmID)
	size += ord.String.Size(p.OsmType)
	size += ord.String.Size(p.Name)
	size += ord.String.Size(p.CategoryKey)
	size += ord.String.Size(p.CategoryValue)
	size += ord.Bool.Size(p.Coordinates != nil)
	if p.Coordinates != nil {
		size += raw.Float64.Size(p.Coordinates.Latitude)
		size += raw.Float64.Size(p.Coordinates.Longitude)
	}
	size += sizeStringMap(p.Tags)
	size += sizeStringMap(p.Address)
	size += sizeStringMap(p.Source)
	size += ord.Bool.Size(p.IsActive)
	size += ord.Bool.Size(p.PendingSync)
	size += sizeTime(p.CreatedAt)
	size += sizeTime(p.UpdatedAt)
	return size
}

func (s placeMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type vectorRecordMUS struct{}

func (vectorRecordMUS) Marshal(r core.VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.PlaceID, bs)
	n += varint.Int.Marshal(len(r.Vector), bs[n:])
	for _, v := range r.Vector {
		n += raw.Float32.Marshal(v, bs[n:])
	}
	n += ord.String.Marshal(r.Payload.Name, bs[n:])
	n += ord.String.Marshal(r.Payload.CategoryKey, bs[n:])
	n += ord.String.Marshal(r.Payload.CategoryValue, bs[n:])
	n += ord.Bool.Marshal(r.Payload.HasCoordinates, bs[n:])
	n += raw.Float64.Marshal(r.Payload.Latitude, bs[n:])
	n += raw.Float64.Marshal(r.Payload.Longitude, bs[n:])
	n += marshalStringMap(r.Payload.Tags, bs[n:])
	n += marshalTime(r.UpdatedAt, bs[n:])
	return n
}

func (vectorRecordMUS) Unmarshal(bs []byte) (r core.VectorRecord, n int, err error) {
	var n1 int
	r.PlaceID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return r, n, err
	}
	var length int
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	if length < 0 {
		return r, n, fmt.Errorf("negative vector length %d", length)
	}
	r.Vector = make([]float32, length)
	for i := 0; i < length; i++ {
		r.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
	}
	r.Payload.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Payload.CategoryKey, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Payload.CategoryValue, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Payload.HasCoordinates, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Payload.Latitude, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Payload.Longitude, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Payload.Tags, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return r, n, err
}

func (vectorRecordMUS) Size(r core.VectorRecord) (size int) {
	size = ord.String.Size(r.PlaceID)
	size += varint.Int.Size(len(r.Vector))
	for _, v := range r.Vector {
		size += raw.Float32.Size(v)
	}
	size += ord.String.Size(r.Payload.Name)
	size += ord.String.Size(r.Payload.CategoryKey)
	size += ord.String.Size(r.Payload.CategoryValue)
	size += ord.Bool.Size(r.Payload.HasCoordinates)
	size += raw.Float64.Size(r.Payload.Latitude)
	size += raw.Float64.Size(r.Payload.Longitude)
	size += sizeStringMap(r.Payload.Tags)
	size += sizeTime(r.UpdatedAt)
	return size
}

func (s vectorRecordMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}
