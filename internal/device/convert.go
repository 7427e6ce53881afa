package device

import "unsafe"

// int16SliceAsBytes reinterprets a []int16 sample buffer as a []byte view
// over the same S16LE-native little-endian memory, avoiding a per-callback
// copy-and-convert pass. Valid on the little-endian platforms both
// backends target.
func int16SliceAsBytes(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), len(samples)*2)
}
