package domain

import (
	"hash/fnv"
	"sort"
	"strconv"
)

type fnvAccum struct {
	h uint64
}

func fnvHash() *fnvAccum {
	return &fnvAccum{h: fnv.New64a().Sum64()}
}

func (a *fnvAccum) writeString(s string) {
	hasher := fnv.New64a()
	hasher.Write([]byte(strconv.FormatUint(a.h, 16)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(s))
	a.h = hasher.Sum64()
}

func (a *fnvAccum) writeBool(b bool) {
	if b {
		a.writeString("1")
	} else {
		a.writeString("0")
	}
}

func (a *fnvAccum) writeInt(i int) {
	a.writeString(strconv.Itoa(i))
}

func (a *fnvAccum) sum() string {
	return strconv.FormatUint(a.h, 16)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortStrings(s []string) {
	sort.Strings(s)
}
