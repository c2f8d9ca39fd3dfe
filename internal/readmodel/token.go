package readmodel

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Continuation tokens are the partition and row key of the last returned
// entity, length prefixed and base64 encoded. They are opaque to clients but
// bound to the tenant that produced them.

func encodeToken(partitionKey, rowKey string) string {
	if partitionKey == "" || rowKey == "" {
		return ""
	}
	pk := []byte(partitionKey)
	rk := []byte(rowKey)
	data := make([]byte, 8+len(pk)+len(rk))
	binary.BigEndian.PutUint32(data[0:4], uint32(len(pk)))
	binary.BigEndian.PutUint32(data[4:8], uint32(len(rk)))
	copy(data[8:], pk)
	copy(data[8+len(pk):], rk)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeToken(token string) (partitionKey, rowKey string, err error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if len(data) < 8 {
		return "", "", ErrBadToken
	}
	pkLen := binary.BigEndian.Uint32(data[0:4])
	rkLen := binary.BigEndian.Uint32(data[4:8])
	if pkLen == 0 || rkLen == 0 || uint64(8)+uint64(pkLen)+uint64(rkLen) != uint64(len(data)) {
		return "", "", ErrBadToken
	}
	pk := string(data[8 : 8+pkLen])
	rk := string(data[8+pkLen:])
	return pk, rk, nil
}

// resumeKey validates a client token against the tenant it is used for and
// returns the row key to resume after.
func resumeKey(token, tenant string) (string, error) {
	if token == "" {
		return "", nil
	}
	pk, rk, err := decodeToken(token)
	if err != nil {
		return "", err
	}
	if pk != tenant {
		return "", fmt.Errorf("%w: token belongs to another tenant", ErrBadToken)
	}
	return rk, nil
}
