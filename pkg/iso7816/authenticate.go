package iso7816

import "fmt"

// ISO authentication exchange:
//
//	GET CHALLENGE (84)          card returns a random number RndB
//	EXTERNAL AUTHENTICATE (82)  host proves knowledge of the key with E(RndA || RndB)
//	INTERNAL AUTHENTICATE (88)  host sends RndA2, card answers E(RndB2 || RndA2)
//
// P1 names the algorithm, P2 the key number. DESFire uses the algorithm
// references below.

// AuthAlgorithm is the P1 value of the authenticate commands.
type AuthAlgorithm byte

const (
	AlgDES    AuthAlgorithm = 0x02
	Alg3K3DES AuthAlgorithm = 0x04
	AlgAES    AuthAlgorithm = 0x09
)

// GetChallenge creates a GET CHALLENGE command for a challenge of ne bytes.
func GetChallenge(cla Class, ne int) (*CommandAPDU, error) {
	if ne <= 0 || ne > MaxShortLe {
		return nil, fmt.Errorf("invalid challenge length %d", ne)
	}
	return NewCommandAPDU(cla, mustInstruction(INS_GET_CHALLENGE), 0x00, 0x00, nil, ne), nil
}

// ExternalAuthenticate creates an EXTERNAL AUTHENTICATE command.
func ExternalAuthenticate(cla Class, alg AuthAlgorithm, keyNo byte, data []byte) (*CommandAPDU, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("external authenticate needs data")
	}
	return NewCommandAPDU(cla, mustInstruction(INS_EXTERNAL_AUTHENTICATE), byte(alg), keyNo, data, 0), nil
}

// InternalAuthenticate creates an INTERNAL AUTHENTICATE command expecting ne bytes.
func InternalAuthenticate(cla Class, alg AuthAlgorithm, keyNo byte, data []byte, ne int) (*CommandAPDU, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("internal authenticate needs data")
	}
	return NewCommandAPDU(cla, mustInstruction(INS_INTERNAL_AUTHENTICATE), byte(alg), keyNo, data, ne), nil
}
