package usecase

import (
	"path"
	"strconv"
)

// Object key layout shared by registration, signing, and reconciliation:
//
//	videos/<source-id>.<ext>  unsigned artifact
//	signed/<basename>         signed copy, same basename
//	timestamps/<record-id>.ots anchor proof
//
// The proof key derives from the ledger record id, not the source id: two
// records over the same unsigned object must never share a proof object.
const (
	unsignedKeyPrefix = "videos/"
	signedKeyPrefix   = "signed/"
	proofKeyPrefix    = "timestamps/"
)

func unsignedKeyFor(sourceID, ext string) string {
	return unsignedKeyPrefix + sourceID + "." + ext
}

func signedKeyFor(unsignedKey string) string {
	return signedKeyPrefix + path.Base(unsignedKey)
}

func proofKeyFor(recordID int64) string {
	return proofKeyPrefix + strconv.FormatInt(recordID, 10) + ".ots"
}
