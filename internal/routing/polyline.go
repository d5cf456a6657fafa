package routing

// Polyline decoders for the two encodings the providers return. Both produce
// GeoJSON-ordered [lon, lat] pairs to match the Route geometry contract.

// decodeFlexPolyline decodes HERE's flexible polyline format. Only the 2D
// lat/lon case is handled; the optional third dimension is skipped when the
// header declares one.
func decodeFlexPolyline(encoded string) [][]float64 {
	if encoded == "" {
		return nil
	}

	pos := 0
	readUnsigned := func() (uint64, bool) {
		var result uint64
		var shift uint
		for pos < len(encoded) {
			v := decodeChar(encoded[pos])
			if v < 0 {
				return 0, false
			}
			pos++
			result |= uint64(v&0x1F) << shift
			if v&0x20 == 0 {
				return result, true
			}
			shift += 5
		}
		return 0, false
	}
	readSigned := func() (int64, bool) {
		u, ok := readUnsigned()
		if !ok {
			return 0, false
		}
		v := int64(u >> 1)
		if u&1 != 0 {
			v = ^v
		}
		return v, true
	}

	// Header: version, then precision (bits 0-3) and third-dimension
	// descriptor (bits 4-6) with its precision (bits 7-10).
	if _, ok := readUnsigned(); !ok {
		return nil
	}
	header, ok := readUnsigned()
	if !ok {
		return nil
	}
	precision := header & 0x0F
	thirdDim := (header >> 4) & 0x07

	factor := pow10(int(precision))

	var coords [][]float64
	var lat, lon, z int64
	for {
		dLat, ok := readSigned()
		if !ok {
			break
		}
		dLon, ok := readSigned()
		if !ok {
			break
		}
		lat += dLat
		lon += dLon
		if thirdDim != 0 {
			dz, ok := readSigned()
			if !ok {
				break
			}
			z += dz
		}
		coords = append(coords, []float64{float64(lon) / factor, float64(lat) / factor})
	}
	return coords
}

// flexpolyline character set.
const flexTable = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

var flexDecode [128]int8

func init() {
	for i := range flexDecode {
		flexDecode[i] = -1
	}
	for i := 0; i < len(flexTable); i++ {
		flexDecode[flexTable[i]] = int8(i)
	}
}

func decodeChar(c byte) int8 {
	if c >= 128 {
		return -1
	}
	return flexDecode[c]
}

// decodeGooglePolyline decodes the classic Google polyline encoding
// (precision 5).
func decodeGooglePolyline(encoded string) [][]float64 {
	var coords [][]float64
	var lat, lon int64
	pos := 0

	readDelta := func() (int64, bool) {
		var result int64
		var shift uint
		for pos < len(encoded) {
			b := int64(encoded[pos]) - 63
			pos++
			result |= (b & 0x1F) << shift
			if b < 0x20 {
				if result&1 != 0 {
					return ^(result >> 1), true
				}
				return result >> 1, true
			}
			shift += 5
		}
		return 0, false
	}

	for pos < len(encoded) {
		dLat, ok := readDelta()
		if !ok {
			break
		}
		dLon, ok := readDelta()
		if !ok {
			break
		}
		lat += dLat
		lon += dLon
		coords = append(coords, []float64{float64(lon) / 1e5, float64(lat) / 1e5})
	}
	return coords
}

func pow10(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
